// Package health serves the bridge's liveness endpoint.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/corvidlabs/missionbridge/internal/domain"
	"github.com/corvidlabs/missionbridge/internal/xtime"
)

// GatewayStatus is the subset of the gateway client the health handler
// reads: a cheap connection-state snapshot and an optional live probe.
type GatewayStatus interface {
	GetConnectionState() domain.GatewayConnectionState
	HealthCheck(ctx context.Context) (any, error)
}

// Handler serves GET/HEAD /api/health and /health.
type Handler struct {
	gateway GatewayStatus
	secret  string
}

// NewHandler builds a health Handler. secret == "" disables the
// authenticated live-probe path; every request is treated as unauthenticated.
func NewHandler(gateway GatewayStatus, secret string) *Handler {
	return &Handler{gateway: gateway, secret: secret}
}

type gatewayHealthView struct {
	domain.GatewayConnectionState
	Health     any    `json:"health,omitempty"`
	ProbeError string `json:"probeError,omitempty"`
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Gateway   gatewayHealthView `json:"gateway"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/health", "/health":
	default:
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := h.gateway.GetConnectionState()
	view := gatewayHealthView{GatewayConnectionState: state}
	degraded := !state.Connected

	if h.authorized(r) {
		result, err := h.gateway.HealthCheck(r.Context())
		if err != nil {
			degraded = true
			view.ProbeError = err.Error()
		} else {
			view.Health = result
		}
	}

	resp := healthResponse{
		Status:    "ok",
		Timestamp: xtime.NowISO(),
		Gateway:   view,
	}
	status := http.StatusOK
	if degraded {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token == h.secret
		}
	}
	return r.Header.Get("bridge-control-secret") == h.secret
}
