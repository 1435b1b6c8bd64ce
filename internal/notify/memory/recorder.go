// Package memory records notifications instead of delivering them.
package memory

import (
	"context"
	"sync"
)

// BroadcastChat is the chat ID recorded for broadcast messages.
const BroadcastChat = "broadcast"

// Message is one recorded notification.
type Message struct {
	ChatID string
	Text   string
}

// Recorder keeps every message in order; used by tests and --dry-run.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent sends return err after recording.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Private records a direct message.
func (r *Recorder) Private(_ context.Context, chatID string, text string) error {
	return r.add(chatID, text)
}

// Broadcast records a channel message.
func (r *Recorder) Broadcast(_ context.Context, text string) error {
	return r.add(BroadcastChat, text)
}

func (r *Recorder) add(chatID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{ChatID: chatID, Text: text})
	return r.err
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// For returns the texts sent to chatID.
func (r *Recorder) For(chatID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.messages {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}
