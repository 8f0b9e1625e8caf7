package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/MrWong99/jarvis/internal/session"
	"github.com/MrWong99/jarvis/internal/transcript"
)

// runHeadless activates the session and prints each finished transcript
// entry to w until ctx is cancelled. A failed activation is logged but does
// not end the run; the process keeps serving its probes.
func runHeadless(ctx context.Context, ctrl *session.Controller, w io.Writer) error {
	p := &entryPrinter{w: w}
	ctrl.OnChange(func() { p.print(ctrl.Snapshot()) })

	if err := ctrl.Connect(ctx); err != nil {
		slog.Error("activation failed", "err", err)
	}
	<-ctx.Done()
	ctrl.Disconnect()
	p.print(ctrl.Snapshot())
	return nil
}

// entryPrinter writes finished entries exactly once. Entries are only ever
// appended or sealed, so a count of printed entries is enough to resume.
type entryPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	printed int
	lastErr string
}

func (p *entryPrinter) print(s session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.printed > len(s.Transcript) {
		// A new activation started a fresh transcript.
		p.printed = 0
	}
	for p.printed < len(s.Transcript) && s.Transcript[p.printed].Final {
		e := s.Transcript[p.printed]
		fmt.Fprintf(p.w, "%s: %s\n", speakerName(e.Speaker), e.Text)
		p.printed++
	}
	if s.Error != "" && s.Error != p.lastErr {
		fmt.Fprintf(p.w, "! %s\n", s.Error)
	}
	p.lastErr = s.Error
}

func speakerName(s transcript.Speaker) string {
	if s == transcript.User {
		return "You"
	}
	return "JARVIS"
}
