package ui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/jarvis/internal/session"
	"github.com/MrWong99/jarvis/internal/transcript"
)

type fakeController struct {
	mu        sync.Mutex
	snap      session.Snapshot
	freq      []byte
	toggles   int
	toggleErr error
	listeners []func()
}

func (f *fakeController) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) FrequencyData() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.freq
}

func (f *fakeController) Toggle(context.Context) error {
	f.mu.Lock()
	f.toggles++
	f.snap.State = session.Listening
	err := f.toggleErr
	f.mu.Unlock()
	return err
}

func (f *fakeController) OnChange(fn func()) {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
}

func (f *fakeController) set(s session.Snapshot) {
	f.mu.Lock()
	f.snap = s
	fns := f.listeners
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return mm, cmd
}

func TestModel_EnterToggles(t *testing.T) {
	t.Parallel()
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl, nil)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter should produce a toggle command")
	}
	msg := cmd()
	if _, ok := msg.(toggleMsg); !ok {
		t.Fatalf("command produced %T, want toggleMsg", msg)
	}
	if ctrl.toggles != 1 {
		t.Errorf("toggles = %d, want 1", ctrl.toggles)
	}
	m, _ = update(t, m, msg)
	if m.snap.State != session.Listening {
		t.Errorf("state after toggle = %v, want listening", m.snap.State)
	}
}

func TestModel_EnterIgnoredWhileConnecting(t *testing.T) {
	t.Parallel()
	ctrl := &fakeController{snap: session.Snapshot{State: session.Connecting}}
	m := NewModel(context.Background(), ctrl, nil)

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("enter while connecting should be ignored")
	}
}

func TestModel_Quit(t *testing.T) {
	t.Parallel()
	m := NewModel(context.Background(), &fakeController{}, nil)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should produce tea.QuitMsg")
	}
	if m.View() != "Goodbye.\n" {
		t.Errorf("View after quit = %q", m.View())
	}
}

func TestModel_ChangeNotificationRefreshesSnapshot(t *testing.T) {
	t.Parallel()
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl, nil)

	ctrl.set(session.Snapshot{
		State:      session.Listening,
		Transcript: []transcript.Entry{{Speaker: transcript.User, Text: "Hello", Final: true}},
	})
	msg := m.waitChange()()
	if _, ok := msg.(changeMsg); !ok {
		t.Fatalf("waitChange produced %T", msg)
	}
	m, cmd := update(t, m, msg)
	if cmd == nil {
		t.Error("change should re-arm the listener")
	}
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 60, Height: 20})

	view := m.View()
	for _, want := range []string{"J.A.R.V.I.S.", "Online", "Hello", "enter=Deactivate"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_ErrorShown(t *testing.T) {
	t.Parallel()
	ctrl := &fakeController{snap: session.Snapshot{
		State: session.Error,
		Error: "Failed to connect: microphone permission denied",
	}}
	m := NewModel(context.Background(), ctrl, nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 20})

	view := m.View()
	for _, want := range []string{"Error", "microphone permission denied", "enter=Activate", "Awaiting connection..."} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_FrameSamplesSpectrum(t *testing.T) {
	t.Parallel()
	freq := make([]byte, 128)
	for i := range freq {
		freq[i] = 255
	}
	ctrl := &fakeController{snap: session.Snapshot{State: session.Listening}, freq: freq}
	m := NewModel(context.Background(), ctrl, nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 30, Height: 20})

	m, cmd := update(t, m, frameMsg{})
	if cmd == nil {
		t.Error("frame should schedule the next tick")
	}
	if !strings.Contains(m.View(), "█") {
		t.Error("spectrum bars not rendered")
	}

	ctrl.freq = nil
	m, _ = update(t, m, frameMsg{})
	if !strings.Contains(m.View(), "•") {
		t.Error("idle wave not rendered while listening")
	}
}

func TestModel_LogLines(t *testing.T) {
	t.Parallel()
	logs := NewLogWriter(10)
	m := NewModel(context.Background(), &fakeController{}, logs)

	_, _ = logs.Write([]byte("level=INFO msg=\"session connected\"\n"))
	msg := m.listenLogs()()
	m, _ = update(t, m, msg)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 60, Height: 20})
	if !strings.Contains(m.View(), "session connected") {
		t.Errorf("log line not shown:\n%s", m.View())
	}
}

func TestModel_CommandsStopOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	m := NewModel(ctx, &fakeController{}, NewLogWriter(1))
	cancel()
	if msg := m.waitChange()(); msg != nil {
		t.Errorf("waitChange after cancel = %T, want nil", msg)
	}
	if msg := m.listenLogs()(); msg != nil {
		t.Errorf("listenLogs after cancel = %T, want nil", msg)
	}
}
