package notify

import (
	"context"
	"sync"
	"time"

	"fieldline/internal/domain"
)

// Update is the result of one poll.
type Update struct {
	Items  []domain.Notification
	Fresh  []domain.Notification
	Unread int
}

// Poller is the reference client loop. The first poll only primes it; later
// polls report items newer than the newest one seen so far.
type Poller struct {
	Channel Channel
	Role    domain.Role
	Limit   int

	mu     sync.Mutex
	newest int64
	primed bool
	items  []domain.Notification
}

func NewPoller(ch Channel, role domain.Role, limit int) *Poller {
	return &Poller{Channel: ch, Role: role, Limit: limit}
}

func (p *Poller) Poll(ctx context.Context) (Update, error) {
	items, err := p.Channel.ListForRole(ctx, p.Role, p.Limit)
	if err != nil {
		return Update{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var fresh []domain.Notification
	newest := p.newest
	for _, it := range items {
		if p.primed && it.Seq > p.newest {
			fresh = append(fresh, it)
		}
		if it.Seq > newest {
			newest = it.Seq
		}
	}
	p.newest = newest
	p.primed = true
	p.items = items
	return Update{Items: items, Fresh: fresh, Unread: Unread(items)}, nil
}

// UnreadCount is computed over the last fetched window only.
func (p *Poller) UnreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Unread(p.items)
}

// MarkRead forwards to the channel and updates the cached window.
func (p *Poller) MarkRead(ctx context.Context, id string) (bool, error) {
	ok, err := p.Channel.MarkRead(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.items {
		if p.items[i].ID == id {
			p.items[i].Read = true
		}
	}
	return true, nil
}

// Run polls immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context, interval time.Duration, fn func(Update, error)) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	fn(p.Poll(ctx))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(p.Poll(ctx))
		}
	}
}
