package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"funnelbot/internal/model"
	"funnelbot/internal/services/broadcast"
	"funnelbot/internal/storage"
	logx "funnelbot/pkg/logx"
)

type handlers struct {
	bc      Broadcasts
	store   BroadcastStore
	tenants Tenants
	log     logx.Logger
	started time.Time
}

type broadcastView struct {
	ID        int64                 `json:"id"`
	TenantID  int64                 `json:"tenant_id"`
	Name      string                `json:"name"`
	Target    model.BroadcastTarget `json:"target"`
	Status    model.BroadcastStatus `json:"status"`
	SentCount int                   `json:"sent_count"`
	Run       *broadcast.RunStatus  `json:"run,omitempty"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ids := h.tenants.IDs()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"sessions": len(ids),
		"tenants":  ids,
	})
}

func (h *handlers) getBroadcast(w http.ResponseWriter, r *http.Request) {
	id, ok := broadcastID(w, r)
	if !ok {
		return
	}
	b, err := h.store.Broadcast(r.Context(), id)
	if err != nil {
		h.fail(w, id, err)
		return
	}
	v := broadcastView{
		ID:        b.ID,
		TenantID:  b.TenantID,
		Name:      b.Name,
		Target:    model.NormalizeTarget(b.Target),
		Status:    b.Status,
		SentCount: b.SentCount,
	}
	if st, ok := h.bc.Status(id); ok {
		v.Run = &st
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handlers) startBroadcast(w http.ResponseWriter, r *http.Request) {
	h.launch(w, r, h.bc.Start)
}

func (h *handlers) resendBroadcast(w http.ResponseWriter, r *http.Request) {
	h.launch(w, r, h.bc.Resend)
}

func (h *handlers) launch(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) (broadcast.RunStatus, error)) {
	id, ok := broadcastID(w, r)
	if !ok {
		return
	}
	st, err := fn(r.Context(), id)
	if err != nil {
		h.fail(w, id, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (h *handlers) fail(w http.ResponseWriter, id int64, err error) {
	code := statusFor(err)
	if code >= 500 {
		h.log.Error("broadcast request failed", logx.Int64("broadcast_id", id), logx.Err(err))
	}
	writeError(w, code, err.Error())
}

func statusFor(err error) int {
	var ve *model.ValidationError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &ve), errors.Is(err, broadcast.ErrNoTargets):
		return http.StatusBadRequest
	case errors.Is(err, broadcast.ErrJobRunning):
		return http.StatusConflict
	case errors.Is(err, broadcast.ErrNoSession):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func broadcastID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid broadcast id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
