// Package transcript reconciles streamed transcription fragments into an
// ordered conversation log.
//
// The live service reports user and assistant speech as small text deltas.
// [Log] appends each delta to the speaker's open entry and seals every open
// entry when the turn completes. Open entries are tracked by index, so two
// turns with identical text never interfere.
package transcript

import (
	"strings"
	"sync"
)

// Speaker identifies who produced an entry.
type Speaker int

const (
	// User is the person talking to the assistant.
	User Speaker = iota

	// Assistant is the model.
	Assistant
)

// String implements [fmt.Stringer].
func (s Speaker) String() string {
	switch s {
	case User:
		return "user"
	case Assistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// Entry is one line of the conversation.
type Entry struct {
	Speaker Speaker
	Text    string

	// Final is set once the turn that produced the entry has completed.
	Final bool
}

// noEntry marks an empty speaker slot.
const noEntry = -1

// Log is the conversation transcript. The zero value is not usable; create
// one with [New]. All methods are safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	open     [2]int
	onChange func()
}

// New returns an empty log.
func New() *Log {
	return &Log{open: [2]int{noEntry, noEntry}}
}

// OnChange registers fn to be called after every mutation. It is called
// without the log's lock held. Passing nil clears the hook.
func (l *Log) OnChange(fn func()) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// AddPartial appends fragment to the speaker's open entry, opening a new
// entry at the end of the log if there is none. Empty fragments are ignored.
func (l *Log) AddPartial(speaker Speaker, fragment string) {
	if fragment == "" || (speaker != User && speaker != Assistant) {
		return
	}
	l.mu.Lock()
	if idx := l.open[speaker]; idx != noEntry {
		var b strings.Builder
		b.Grow(len(l.entries[idx].Text) + len(fragment))
		b.WriteString(l.entries[idx].Text)
		b.WriteString(fragment)
		l.entries[idx].Text = b.String()
	} else {
		l.entries = append(l.entries, Entry{Speaker: speaker, Text: fragment})
		l.open[speaker] = len(l.entries) - 1
	}
	fn := l.onChange
	l.mu.Unlock()
	notify(fn)
}

// CompleteTurn marks every open entry final and clears both speaker slots.
// Entries are addressed by the index recorded when they were opened.
func (l *Log) CompleteTurn() {
	l.mu.Lock()
	changed := false
	for s, idx := range l.open {
		if idx == noEntry {
			continue
		}
		l.entries[idx].Final = true
		l.open[s] = noEntry
		changed = true
	}
	fn := l.onChange
	l.mu.Unlock()
	if changed {
		notify(fn)
	}
}

// Reset deletes every entry.
func (l *Log) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.open = [2]int{noEntry, noEntry}
	fn := l.onChange
	l.mu.Unlock()
	notify(fn)
}

// Entries returns a copy of the log in order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Open reports whether speaker currently has an open entry.
func (l *Log) Open(speaker Speaker) bool {
	if speaker != User && speaker != Assistant {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open[speaker] != noEntry
}

func notify(fn func()) {
	if fn != nil {
		fn()
	}
}
