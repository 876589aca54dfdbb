// Package transport carries sync messages between the primary and satellite processes.
// Everything it receives is published as an Event on a single Bus.
package transport

import (
	"context"

	"voice-commit/internal/model"
)

// EventKind tags an Event.
type EventKind int

const (
	PeerReachabilityChanged EventKind = iota + 1
	MessageReceived
	ContextReceived
)

func (k EventKind) String() string {
	switch k {
	case PeerReachabilityChanged:
		return "peer_reachability_changed"
	case MessageReceived:
		return "message_received"
	case ContextReceived:
		return "context_received"
	default:
		return "unknown"
	}
}

// Event is one inbound occurrence. Reachable is set for PeerReachabilityChanged, Message for
// the other kinds, Version only for ContextReceived.
type Event struct {
	Kind      EventKind
	Reachable bool
	Message   model.SyncMessage
	Version   int64

	reply chan model.SyncMessage
}

// NewMessageEvent builds a MessageReceived event and the channel its reply arrives on.
func NewMessageEvent(msg model.SyncMessage) (Event, <-chan model.SyncMessage) {
	reply := make(chan model.SyncMessage, 1)
	return Event{Kind: MessageReceived, Message: msg, reply: reply}, reply
}

// CanReply reports whether the sender is waiting for an answer.
func (e Event) CanReply() bool {
	return e.reply != nil
}

// Reply answers a live message. It never blocks and only the first reply is kept.
func (e Event) Reply(msg model.SyncMessage) {
	if e.reply == nil {
		return
	}
	select {
	case e.reply <- msg:
	default:
	}
}

// Bus is the single ordered inbox of a process.
type Bus struct {
	events chan Event
}

func NewBus(size int) *Bus {
	return &Bus{events: make(chan Event, size)}
}

func (b *Bus) Events() <-chan Event {
	return b.events
}

func (b *Bus) Publish(ctx context.Context, ev Event) error {
	select {
	case b.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver publishes msg as MessageReceived and waits for the consumer's reply.
func (b *Bus) Deliver(ctx context.Context, msg model.SyncMessage) (model.SyncMessage, error) {
	ev, reply := NewMessageEvent(msg)
	if err := b.Publish(ctx, ev); err != nil {
		return model.SyncMessage{}, err
	}
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return model.SyncMessage{}, ctx.Err()
	}
}
