package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/corvidlabs/missionbridge/internal/domain"
	"github.com/corvidlabs/missionbridge/internal/presence"
	"github.com/corvidlabs/missionbridge/internal/xtime"
)

// StatusPoster is the subset of the state-store client the control plane
// uses to post status side effects directly (bypassing the event buffer in this data
// flow bypasses the event buffer).
type StatusPoster interface {
	UpdateAgentStatuses(ctx context.Context, updates []domain.AgentStatusUpdate) error
}

// Handler serves POST /api/control.
type Handler struct {
	gw           GatewayExecutor
	tracker      *presence.Tracker
	statusPoster StatusPoster
	secret       string
	maxBodyBytes int64
}

// NewHandler builds a control Handler. secret == "" means the control
// plane is unconfigured and every request is rejected with 503.
func NewHandler(gw GatewayExecutor, tracker *presence.Tracker, statusPoster StatusPoster, secret string, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &Handler{gw: gw, tracker: tracker, statusPoster: statusPoster, secret: secret, maxBodyBytes: maxBodyBytes}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.secret == "" {
		http.Error(w, "control plane not configured", http.StatusServiceUnavailable)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	payload, err := ParseControlPayload(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if payload.RequestID == "" {
		payload.RequestID = uuid.NewString()
	}

	resp := h.execute(r.Context(), payload)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) authorized(r *http.Request) bool {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token == h.secret
		}
	}
	return r.Header.Get("bridge-control-secret") == h.secret
}

// execute runs payload's command for every target agent, serially for a
// single agentId and fanned out in parallel for a bulk agentIds list, and
// assembles the {requestId, status, error?} response.
func (h *Handler) execute(ctx context.Context, payload domain.ControlPayload) domain.ControlResponse {
	targets := payload.AgentIDs
	if len(targets) == 0 {
		targets = []string{payload.AgentID}
	}

	type outcome struct {
		update *domain.AgentStatusUpdate
		err    error
	}
	outcomes := make([]outcome, len(targets))

	var wg sync.WaitGroup
	for i, agentID := range targets {
		wg.Add(1)
		go func(i int, agentID string) {
			defer wg.Done()
			update, err := ExecuteForAgent(ctx, h.gw, h.tracker, payload.Command, agentID, payload.Params, xtime.NowMillis())
			outcomes[i] = outcome{update: update, err: err}
		}(i, agentID)
	}
	wg.Wait()

	var updates []domain.AgentStatusUpdate
	var firstValidationErr error
	var firstOtherErr error
	for _, o := range outcomes {
		if o.update != nil {
			updates = append(updates, *o.update)
		}
		if o.err == nil {
			continue
		}
		var verr *ValidationError
		if errors.As(o.err, &verr) {
			if firstValidationErr == nil {
				firstValidationErr = o.err
			}
		} else if firstOtherErr == nil {
			firstOtherErr = o.err
		}
	}

	if len(updates) > 0 && h.statusPoster != nil {
		if err := h.statusPoster.UpdateAgentStatuses(ctx, updates); err != nil {
			slog.Warn("control: failed to post status update", "error", err)
		}
	}

	switch {
	case firstOtherErr != nil:
		return domain.ControlResponse{RequestID: payload.RequestID, Status: domain.StatusError, Error: firstOtherErr.Error()}
	case firstValidationErr != nil:
		return domain.ControlResponse{RequestID: payload.RequestID, Status: domain.StatusRejected, Error: firstValidationErr.Error()}
	default:
		return domain.ControlResponse{RequestID: payload.RequestID, Status: domain.StatusAccepted}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
