package sync

import "sync"

// pendingCell is a single-slot holder for the set-active-chat notification
// while the relay is down. Latest wins: an unbounded queue would replay a
// history of stale pins on reconnect, when only the current one matters.
type pendingCell struct {
	mu     sync.Mutex
	chatID string
	armed  bool
}

// Set stores the latest pending active-chat id (empty means "no chat").
func (p *pendingCell) Set(chatID string) {
	p.mu.Lock()
	p.chatID = chatID
	p.armed = true
	p.mu.Unlock()
}

// Take returns the pending id and disarms the cell, so a value is flushed at
// most once.
func (p *pendingCell) Take() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.armed {
		return "", false
	}
	p.armed = false
	id := p.chatID
	p.chatID = ""
	return id, true
}
