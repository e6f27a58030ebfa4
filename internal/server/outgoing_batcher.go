package server

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zot/supplies/internal/protocol"
)

// MessageSender delivers a message to every open connection.
type MessageSender interface {
	Broadcast(msg *protocol.Message)
}

// OutgoingBatcher coalesces state pushes with debouncing.
// A state message carries the whole collection, so only the latest queued
// message is sent when the timer fires.
type OutgoingBatcher struct {
	mu               sync.Mutex
	pending          *protocol.Message
	debounceTimer    *time.Timer
	debounceInterval time.Duration
	sender           MessageSender
	batchCount       int
	log              *zap.Logger
}

// NewOutgoingBatcher creates a batcher with the given message sender.
func NewOutgoingBatcher(sender MessageSender, log *zap.Logger) *OutgoingBatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &OutgoingBatcher{
		debounceInterval: 10 * time.Millisecond,
		sender:           sender,
		log:              log,
	}
}

// Queue replaces the pending message and starts the debounce timer if it
// is not already running.
func (b *OutgoingBatcher) Queue(msg *protocol.Message) {
	if msg == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = msg
	if b.debounceTimer == nil {
		b.debounceTimer = time.AfterFunc(b.debounceInterval, b.flush)
	}
}

// FlushNow immediately sends the pending message.
func (b *OutgoingBatcher) FlushNow() {
	b.mu.Lock()
	if b.debounceTimer != nil {
		b.debounceTimer.Stop()
	}
	b.mu.Unlock()

	b.flush()
}

func (b *OutgoingBatcher) flush() {
	b.mu.Lock()
	b.debounceTimer = nil
	msg := b.pending
	b.pending = nil
	b.batchCount++
	count := b.batchCount
	b.mu.Unlock()

	if msg == nil {
		return
	}
	b.log.Debug("flush", zap.Int("batch", count), zap.String("type", string(msg.Type)))
	b.sender.Broadcast(msg)
}

// Clear drops the pending message and stops the timer.
func (b *OutgoingBatcher) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.debounceTimer != nil {
		b.debounceTimer.Stop()
	}
	b.debounceTimer = nil
	b.pending = nil
}

// Pending reports whether a message is waiting to be sent.
func (b *OutgoingBatcher) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending != nil
}
