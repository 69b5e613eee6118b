package tenant

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"funnelbot/internal/services/broadcast"
)

// ErrNoSession means the tenant has no running session.
var ErrNoSession = errors.New("no running session")

// Registry maps tenant ids to live sessions. It is owned by the process and
// injected wherever a session lookup is needed.
type Registry struct {
	mu sync.RWMutex
	m  map[int64]*Session
}

func NewRegistry() *Registry {
	return &Registry{m: map[int64]*Session{}}
}

// Put registers (or replaces) the session for tenantID.
func (r *Registry) Put(tenantID int64, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[tenantID] = s
}

// Remove unregisters and returns the session, if any.
func (r *Registry) Remove(tenantID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.m[tenantID]
	delete(r.m, tenantID)
	return s
}

func (r *Registry) Get(tenantID int64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.m[tenantID]
	return s, ok
}

// Deliverer implements broadcast.Sessions.
func (r *Registry) Deliverer(tenantID int64) (broadcast.Deliverer, bool) {
	s, ok := r.Get(tenantID)
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}

// NotifyAdmin routes text to the admin of tenantID. It matches
// logx.AlertRoute.
func (r *Registry) NotifyAdmin(ctx context.Context, tenantID int64, text string) error {
	s, ok := r.Get(tenantID)
	if !ok || s == nil {
		return fmt.Errorf("tenant %d: %w", tenantID, ErrNoSession)
	}
	return s.NotifyAdmin(ctx, text)
}

// IDs returns the registered tenant ids in ascending order.
func (r *Registry) IDs() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.m))
	for id := range r.m {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

var _ broadcast.Sessions = (*Registry)(nil)
