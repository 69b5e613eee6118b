package broadcast

import (
	"sort"
	"time"

	"funnelbot/internal/model"
)

const (
	defaultStatusMax = 200
	defaultStatusTTL = 24 * time.Hour
	maxFailures      = 200
)

// RunStatus is the in-memory view of a campaign's latest run.
type RunStatus struct {
	RunID       string    `json:"run_id"`
	BroadcastID int64     `json:"broadcast_id"`
	TenantID    int64     `json:"tenant_id"`
	Total       int       `json:"total"`
	Sent        int       `json:"sent"`
	Failed      int       `json:"failed"`
	FailedChats []int64   `json:"failed_chats,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	DoneAt      time.Time `json:"done_at,omitempty"`
	Running     bool      `json:"running"`
	Completed   bool      `json:"completed"`
}

func (s *Service) newStatus(runID string, b model.Broadcast, total int) RunStatus {
	now := time.Now()
	s.pruneStatus(now)
	st := &RunStatus{
		RunID:       runID,
		BroadcastID: b.ID,
		TenantID:    b.TenantID,
		Total:       total,
		StartedAt:   now,
		Running:     true,
	}
	s.statusMu.Lock()
	s.status[b.ID] = st
	s.statusMu.Unlock()
	return *st
}

// update applies fn to the status of runID; a newer run for the same
// campaign is left alone.
func (s *Service) update(id int64, runID string, fn func(st *RunStatus)) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if st := s.status[id]; st != nil && st.RunID == runID {
		fn(st)
	}
}

func (s *Service) markSent(id int64, runID string) {
	s.update(id, runID, func(st *RunStatus) { st.Sent++ })
}

func (s *Service) markFail(id int64, runID string, chatID int64) {
	s.update(id, runID, func(st *RunStatus) {
		st.Failed++
		if len(st.FailedChats) < maxFailures {
			st.FailedChats = append(st.FailedChats, chatID)
		}
	})
}

func (s *Service) finish(id int64, runID string, completed bool) {
	s.update(id, runID, func(st *RunStatus) {
		st.DoneAt = time.Now()
		st.Running = false
		st.Completed = completed
	})
}

func (s *Service) sentSoFar(id int64) int {
	st, _ := s.Status(id)
	return st.Sent
}

// Status returns a copy of the latest run's status for the campaign.
func (s *Service) Status(id int64) (RunStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.status[id]
	if !ok || st == nil {
		return RunStatus{}, false
	}
	cp := *st
	cp.FailedChats = append([]int64(nil), st.FailedChats...)
	return cp, true
}

// pruneStatus keeps the status map bounded: finished runs older than the TTL
// go first, then the oldest finished runs beyond the cap.
func (s *Service) pruneStatus(now time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	limit := s.statusMax
	if limit <= 0 {
		limit = defaultStatusMax
	}
	ttl := s.statusTTL
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}

	for id, st := range s.status {
		if !st.Running && !st.DoneAt.IsZero() && now.Sub(st.DoneAt) > ttl {
			delete(s.status, id)
		}
	}
	if len(s.status) <= limit {
		return
	}

	type entry struct {
		id int64
		t  time.Time
	}
	done := make([]entry, 0, len(s.status))
	for id, st := range s.status {
		if !st.Running {
			done = append(done, entry{id: id, t: st.DoneAt})
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].t.Before(done[j].t) })
	excess := len(s.status) - limit
	for i := 0; i < excess && i < len(done); i++ {
		delete(s.status, done[i].id)
	}
}
