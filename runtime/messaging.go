package runtime

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MessageScope selects the recipients of a broadcast.
type MessageScope string

const (
	ScopeParent   MessageScope = "PARENT"
	ScopeSiblings MessageScope = "SIBLINGS"
	ScopeChildren MessageScope = "CHILDREN"
	ScopeAll      MessageScope = "ALL"
)

// Message is one unit of context-to-context communication.
type Message struct {
	ID       string         `json:"id"`
	SenderID string         `json:"sender_id"`
	Scope    MessageScope   `json:"scope"`
	Payload  map[string]any `json:"payload,omitempty"`
	SentAt   time.Time      `json:"sent_at"`
}

// Inbox returns a copy of the messages delivered to this context.
func (c *Context) Inbox() []*Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Message, len(c.inbox))
	copy(out, c.inbox)
	return out
}

// deliver appends the message and invokes the handler outside the lock.
func (c *Context) deliver(msg *Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.inbox = append(c.inbox, msg)
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

// SendMessage delivers a payload to a single context resolved by execution
// ID through the arena. A target outside the arena is handed to the
// configured Messenger for outward delivery; with no messenger the message
// is dropped with a warning.
func (c *Context) SendMessage(ctx context.Context, targetID string, payload map[string]any) error {
	target, ok := c.registry.Lookup(targetID)
	if !ok {
		if c.messenger != nil {
			return c.messenger.Send(ctx, targetID, payload)
		}
		c.logger.Warn("message target not found", zap.String("target_id", targetID))
		return nil
	}
	target.deliver(&Message{
		ID:       uuid.NewString(),
		SenderID: c.executionID,
		Payload:  payload,
		SentAt:   time.Now(),
	})
	return nil
}

// Broadcast delivers a payload to every context in scope, dispatched
// concurrently with no ordering guarantee between recipients.
func (c *Context) Broadcast(ctx context.Context, payload map[string]any, scope MessageScope) error {
	targets := c.resolveScope(scope)
	if len(targets) == 0 {
		return nil
	}

	msg := &Message{
		ID:       uuid.NewString(),
		SenderID: c.executionID,
		Scope:    scope,
		Payload:  payload,
		SentAt:   time.Now(),
	}

	g, _ := errgroup.WithContext(ctx)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			target.deliver(msg)
			return nil
		})
	}
	return g.Wait()
}

// resolveScope maps a scope onto live contexts via the parent/children
// relationships.
func (c *Context) resolveScope(scope MessageScope) []*Context {
	var targets []*Context

	appendParent := func() {
		if parent, ok := c.Parent(); ok {
			targets = append(targets, parent)
		}
	}
	appendSiblings := func() {
		parent, ok := c.Parent()
		if !ok {
			return
		}
		for _, sibling := range parent.Children() {
			if sibling.executionID != c.executionID {
				targets = append(targets, sibling)
			}
		}
	}
	appendChildren := func() {
		targets = append(targets, c.Children()...)
	}

	switch scope {
	case ScopeParent:
		appendParent()
	case ScopeSiblings:
		appendSiblings()
	case ScopeChildren:
		appendChildren()
	case ScopeAll:
		appendParent()
		appendSiblings()
		appendChildren()
	}
	return targets
}
