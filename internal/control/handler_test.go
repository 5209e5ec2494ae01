package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/corvidlabs/missionbridge/internal/presence"
)

type recordedCall struct {
	kind   string // "send" or "call"
	target string // sessionKey or method
	body   any
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []recordedCall
	fail  map[string]bool // target -> force error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{fail: map[string]bool{}}
}

func (g *fakeGateway) Send(ctx context.Context, sessionKey, message string) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, recordedCall{kind: "send", target: sessionKey, body: message})
	if g.fail[sessionKey] {
		return nil, errTransport
	}
	return nil, nil
}

func (g *fakeGateway) Call(ctx context.Context, method string, params any) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, recordedCall{kind: "call", target: method, body: params})
	if g.fail[method] {
		return nil, errTransport
	}
	return nil, nil
}

type stubErr string

func (e stubErr) Error() string { return string(e) }

const errTransport = stubErr("transport failure")

func newHandler(gw *fakeGateway) *Handler {
	return NewHandler(gw, presence.New(nil, time.Minute*2), nil, "topsecret", 1<<20)
}

func doControlRequest(t *testing.T, h *Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/control", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPauseThenResumeIssuesExpectedGatewayCalls(t *testing.T) {
	gw := newFakeGateway()
	h := newHandler(gw)

	rec := doControlRequest(t, h, `{"agentId":"agent_alpha","command":"agent.pause"}`, map[string]string{"bridge-control-secret": "topsecret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("pause: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var pauseResp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &pauseResp); err != nil {
		t.Fatalf("decode pause response: %v", err)
	}
	if pauseResp["status"] != "accepted" {
		t.Fatalf("pause status = %v, want accepted", pauseResp["status"])
	}

	rec = doControlRequest(t, h, `{"agentId":"agent_alpha","command":"agent.resume"}`, map[string]string{"bridge-control-secret": "topsecret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("resume: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.calls) != 2 {
		t.Fatalf("got %d gateway calls, want 2: %+v", len(gw.calls), gw.calls)
	}
	if gw.calls[0].kind != "send" || gw.calls[0].target != "agent:agent_alpha:main" || gw.calls[0].body != "/stop" {
		t.Errorf("call 0 = %+v, want send(agent:agent_alpha:main, /stop)", gw.calls[0])
	}
	if gw.calls[1].kind != "call" || gw.calls[1].target != "cron.wake" {
		t.Errorf("call 1 = %+v, want call(cron.wake, ...)", gw.calls[1])
	}
	wakeParams, ok := gw.calls[1].body.(map[string]any)
	if !ok || wakeParams["text"] != "Resume work" || wakeParams["mode"] != "now" {
		t.Errorf("resume params = %+v, want {text: Resume work, mode: now}", gw.calls[1].body)
	}
}

func TestBulkPauseFansOutAndAccepts(t *testing.T) {
	gw := newFakeGateway()
	h := newHandler(gw)

	rec := doControlRequest(t, h, `{"agentIds":["agent_a","agent_b"],"command":"agent.pause"}`, map[string]string{"bridge-control-secret": "topsecret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "accepted" {
		t.Fatalf("status = %v, want accepted", resp["status"])
	}

	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.calls) != 2 {
		t.Fatalf("got %d gateway calls, want 2: %+v", len(gw.calls), gw.calls)
	}
	targets := map[string]bool{}
	for _, c := range gw.calls {
		if c.kind != "send" || c.body != "/stop" {
			t.Errorf("unexpected call %+v", c)
		}
		targets[c.target] = true
	}
	if !targets["agent:agent_a:main"] || !targets["agent:agent_b:main"] {
		t.Errorf("targets = %v, want agent_a and agent_b sessions", targets)
	}
}

func TestRedirectMissingPayloadIsRejectedWithoutGatewayCalls(t *testing.T) {
	gw := newFakeGateway()
	h := newHandler(gw)

	rec := doControlRequest(t, h, `{"agentId":"agent_1","command":"agent.redirect","params":{}}`, map[string]string{"bridge-control-secret": "topsecret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "rejected" {
		t.Fatalf("status = %v, want rejected", resp["status"])
	}
	if resp["error"] != "Missing task payload" {
		t.Fatalf("error = %v, want %q", resp["error"], "Missing task payload")
	}

	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.calls) != 0 {
		t.Fatalf("expected no gateway calls, got %+v", gw.calls)
	}
}

func TestOversizeBodyReturns413(t *testing.T) {
	gw := newFakeGateway()
	h := newHandler(gw)

	oversized := bytes.Repeat([]byte("a"), 1048587)
	body := `{"agentId":"agent_1","command":"agent.pause","params":{"pad":"` + string(oversized) + `"}}`

	req := httptest.NewRequest(http.MethodPost, "/api/control", strings.NewReader(body))
	req.Header.Set("bridge-control-secret", "topsecret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestMissingSecretConfigurationReturns503(t *testing.T) {
	gw := newFakeGateway()
	h := NewHandler(gw, presence.New(nil, time.Minute*2), nil, "", 1<<20)

	rec := doControlRequest(t, h, `{"agentId":"agent_1","command":"agent.pause"}`, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestWrongSecretReturns401(t *testing.T) {
	gw := newFakeGateway()
	h := newHandler(gw)

	rec := doControlRequest(t, h, `{"agentId":"agent_1","command":"agent.pause"}`, map[string]string{"bridge-control-secret": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestBearerTokenAuthorizes(t *testing.T) {
	gw := newFakeGateway()
	h := newHandler(gw)

	rec := doControlRequest(t, h, `{"agentId":"agent_1","command":"agent.pause"}`, map[string]string{"Authorization": "Bearer topsecret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestTransportFailureSurfacesAsError(t *testing.T) {
	gw := newFakeGateway()
	gw.fail["agent:agent_1:main"] = true
	h := newHandler(gw)

	rec := doControlRequest(t, h, `{"agentId":"agent_1","command":"agent.pause"}`, map[string]string{"bridge-control-secret": "topsecret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "error" {
		t.Fatalf("status = %v, want error", resp["status"])
	}
}

func TestInvalidJSONReturns400(t *testing.T) {
	gw := newFakeGateway()
	h := newHandler(gw)

	rec := doControlRequest(t, h, `{not json`, map[string]string{"bridge-control-secret": "topsecret"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUnsupportedMethodReturns405(t *testing.T) {
	gw := newFakeGateway()
	h := newHandler(gw)

	req := httptest.NewRequest(http.MethodGet, "/api/control", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
