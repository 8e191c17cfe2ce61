// Package assistant defines the handle the core uses to feed the
// conversational assistant. STT/LLM/TTS live outside this process; the
// engine only ever queues system-role text for the assistant's next turn.
package assistant

import (
	"context"
	"log/slog"
	"sync"
)

// Assistant is the collaborator handle registered per session.
//
// InjectSystemMessage queues text the assistant should act on immediately
// (typically spoken to the user). AddSystemMemo queues silent context the
// model should know about without speaking. The event handler owns the
// choice between the two; callers elsewhere should not re-make that policy.
type Assistant interface {
	InjectSystemMessage(ctx context.Context, text string) error
	AddSystemMemo(ctx context.Context, text string) error
}

// Inbox is the in-memory Assistant used by the transport and tests. The
// assistant runtime drains Messages; if nobody is draining, the oldest
// entries are dropped rather than blocking the engine's emission path.
type Inbox struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// Message is one queued system-role entry.
type Message struct {
	Text string
	// Silent marks a memo: added to the assistant's context, never spoken.
	Silent bool
}

const inboxBuffer = 64

// NewInbox creates an assistant inbox with a bounded queue.
func NewInbox() *Inbox {
	return &Inbox{ch: make(chan Message, inboxBuffer)}
}

// InjectSystemMessage queues a spoken system message.
func (i *Inbox) InjectSystemMessage(_ context.Context, text string) error {
	i.push(Message{Text: text})
	return nil
}

// AddSystemMemo queues a silent system memo.
func (i *Inbox) AddSystemMemo(_ context.Context, text string) error {
	i.push(Message{Text: text, Silent: true})
	return nil
}

// Messages returns the receive side of the queue.
func (i *Inbox) Messages() <-chan Message {
	return i.ch
}

// Close marks the inbox closed. Subsequent pushes are dropped.
func (i *Inbox) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	i.closed = true
	close(i.ch)
}

func (i *Inbox) push(m Message) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	for {
		select {
		case i.ch <- m:
			return
		default:
			// Full — drop the oldest entry and retry.
			select {
			case dropped := <-i.ch:
				slog.Warn("assistant inbox full, dropping oldest message",
					"dropped", dropped.Text)
			default:
			}
		}
	}
}
