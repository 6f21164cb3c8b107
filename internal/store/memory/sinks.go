package memory

import (
	"context"
	"sync"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// AuditTrail keeps audit records in memory.
type AuditTrail struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

var _ shared.AuditPort = (*AuditTrail)(nil)

// Record implements shared.AuditPort.
func (a *AuditTrail) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	return nil
}

// Entries returns a copy of every record so far.
func (a *AuditTrail) Entries() []shared.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]shared.AuditLog(nil), a.entries...)
}

// Outbox collects notification events. Err, when set, is returned from every Notify.
type Outbox struct {
	mu     sync.Mutex
	events []shared.Event
	Err    error
}

var _ shared.Notifier = (*Outbox)(nil)

// Notify implements shared.Notifier.
func (o *Outbox) Notify(_ context.Context, ev shared.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.events = append(o.events, ev)
	return nil
}

// Events returns the collected events, optionally only those of the given types.
func (o *Outbox) Events(types ...string) []shared.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(types) == 0 {
		return append([]shared.Event(nil), o.events...)
	}
	var out []shared.Event
	for _, ev := range o.events {
		for _, t := range types {
			if ev.Type == t {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}
