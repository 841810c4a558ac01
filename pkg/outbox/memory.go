// Package outbox holds profile writes that failed after sign-up until the
// reconciler gets them through.
package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/tendant/account-provisioner/pkg/domain"
)

// Defaults for the in-memory store.
const (
	DefaultRetention = 24 * time.Hour
	DefaultLease     = 5 * time.Minute
)

type item struct {
	entry       domain.PendingProfile
	leasedUntil time.Time
}

// Memory is an in-process pending store for single-replica deployments.
// Entries not reconciled within the retention period are dropped.
type Memory struct {
	mu        sync.Mutex
	c         *gocache.Cache
	retention time.Duration
	lease     time.Duration
}

// NewMemory creates an in-memory pending store.
func NewMemory(retention time.Duration) *Memory {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Memory{
		c:         gocache.New(retention, time.Minute),
		retention: retention,
		lease:     DefaultLease,
	}
}

// Enqueue adds or replaces the entry for p's account.
func (m *Memory) Enqueue(ctx context.Context, p domain.PendingProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Set(p.ID(), item{entry: p}, m.retention)
	return nil
}

// Due claims up to limit entries whose next attempt is at or before now,
// oldest first. Claimed entries are hidden from other Due calls for the
// lease period unless completed or rescheduled.
func (m *Memory) Due(ctx context.Context, now time.Time, limit int) ([]domain.PendingProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []domain.PendingProfile
	for _, ci := range m.c.Items() {
		it, ok := ci.Object.(item)
		if !ok {
			continue
		}
		if it.entry.NextAttemptAt.After(now) || it.leasedUntil.After(now) {
			continue
		}
		due = append(due, it.entry)
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	for _, p := range due {
		m.put(p.ID(), item{entry: p, leasedUntil: now.Add(m.lease)})
	}
	return due, nil
}

// Complete removes the entry.
func (m *Memory) Complete(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.c.Get(accountID); !ok {
		return domain.ErrPendingProfileNotFound
	}
	m.c.Delete(accountID)
	return nil
}

// Reschedule records a failed attempt and releases the lease.
func (m *Memory) Reschedule(ctx context.Context, accountID string, attempts int, next time.Time, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.c.Get(accountID)
	if !ok {
		return domain.ErrPendingProfileNotFound
	}
	it := v.(item)
	it.entry.Attempts = attempts
	it.entry.NextAttemptAt = next
	it.entry.LastError = lastErr
	it.leasedUntil = time.Time{}
	m.put(accountID, it)
	return nil
}

// Count returns the number of queued entries.
func (m *Memory) Count(ctx context.Context) (int, error) {
	return m.c.ItemCount(), nil
}

// put stores it without extending the entry's original retention.
func (m *Memory) put(key string, it item) {
	ttl := m.retention
	if _, exp, ok := m.c.GetWithExpiration(key); ok && !exp.IsZero() {
		ttl = time.Until(exp)
		if ttl <= 0 {
			m.c.Delete(key)
			return
		}
	}
	m.c.Set(key, it, ttl)
}
