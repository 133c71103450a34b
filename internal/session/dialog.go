package session

import "sync"

// Ticket identifies one opening of a dialog.
type Ticket uint64

// Dialog hands out a fresh ticket every time a dialog opens. A response is
// applied only if the ticket it was requested under is still current, so a
// late reply to a dismissed dialog is dropped.
type Dialog struct {
	mu      sync.Mutex
	current Ticket
	open    bool
}

// Open starts a new dialog session and invalidates earlier tickets.
func (d *Dialog) Open() Ticket {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current++
	d.open = true
	return d.current
}

// Close dismisses the dialog. Every ticket becomes stale.
func (d *Dialog) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
}

// Current reports whether t belongs to the open dialog.
func (d *Dialog) Current(t Ticket) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open && t == d.current
}

// Deliver runs apply only when t is current and reports whether it ran.
func (d *Dialog) Deliver(t Ticket, apply func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open || t != d.current {
		return false
	}
	apply()
	return true
}
