package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/warden/internal/adapter"
	"github.com/aristath/warden/internal/controller"
	"github.com/aristath/warden/internal/domain"
)

func testState() *domain.EconomyState {
	return &domain.EconomyState{
		Tick:       1,
		Roles:      []string{"producer", "consumer"},
		Currencies: []string{"gold"},
		AgentBalances: map[string]map[string]float64{
			"a": {"gold": 100},
			"b": {"gold": 60},
		},
		AgentRoles:        map[string]string{"a": "producer", "b": "consumer"},
		AgentSatisfaction: map[string]float64{"a": 80, "b": 75},
	}
}

func newTestServer(t *testing.T, cfg Config) (*Server, *adapter.Memory) {
	t.Helper()
	host := adapter.NewMemory(testState())
	ctrl := controller.New(controller.Config{ValidateRegistry: false}, host, zerolog.Nop())
	ctrl.Start()
	return New(cfg, ctrl, zerolog.Nop()), host
}

func postJSON(t *testing.T, s *Server, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestTick_HappyPath(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	rec := postJSON(t, s, "/tick", tickRequest{State: testState()}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["tick"])
	assert.Contains(t, body, "health")
	assert.Contains(t, body, "alerts")
	assert.Contains(t, body, "adjustments")
}

func TestTick_InvalidState(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	bad := testState()
	bad.Roles = nil

	rec := postJSON(t, s, "/tick", tickRequest{State: bad}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "invalid_state", body["error"])
	assert.NotEmpty(t, body["validationErrors"])
}

func TestTick_UnknownFieldRejected(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/tick", strings.NewReader(`{"state":{},"bogus":1}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decodeBody(t, rec)["error"])
}

func TestTick_RateLimited(t *testing.T) {
	s, _ := newTestServer(t, Config{GlobalTicksPerSecond: 1})

	first := postJSON(t, s, "/tick", tickRequest{State: testState()}, nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := postJSON(t, s, "/tick", tickRequest{State: testState()}, nil)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "rate_limited", decodeBody(t, second)["error"])
}

func TestAuth_MissingAndWrongToken(t *testing.T) {
	s, _ := newTestServer(t, Config{APIKey: "sekrit"})

	rec := postJSON(t, s, "/tick", tickRequest{State: testState()}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, s, "/tick", tickRequest{State: testState()}, map[string]string{
		"Authorization": "Bearer wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, s, "/tick", tickRequest{State: testState()}, map[string]string{
		"Authorization": "Bearer sekrit",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_ReadRoutesOpen(t *testing.T) {
	s, _ := newTestServer(t, Config{APIKey: "sekrit"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_Fields(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, string(controller.ModeAutonomous), body["mode"])
	assert.Contains(t, body, "health")
	assert.Contains(t, body, "uptime")
	assert.Contains(t, body, "activePlans")
}

func TestDiagnose_SideEffectFree(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	rec := postJSON(t, s, "/diagnose", diagnoseRequest{State: testState()}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Contains(t, body, "health")
	assert.Contains(t, body, "diagnoses")
	assert.Equal(t, int64(0), s.ctrl.CurrentTick(), "diagnose must not advance the pipeline")
}

func TestConfig_LockUnlock(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	rec := postJSON(t, s, "/config", configRequest{Lock: []string{"economy.gold.faucet_rate"}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, s.ctrl.LockedParams(), "economy.gold.faucet_rate")

	rec = postJSON(t, s, "/config", configRequest{Unlock: []string{"economy.gold.faucet_rate"}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, s.ctrl.LockedParams())
}

func TestApprove_RequiresAdvisorMode(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	rec := postJSON(t, s, "/approve", decisionRequest{DecisionID: "nope"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "not_in_advisor_mode", decodeBody(t, rec)["error"])
}

func TestPrinciples_Listing(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/principles", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Greater(t, body["count"], float64(0))
}

func TestDecisions_LimitAndRange(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/decisions?since=0&limit=5", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Contains(t, body, "decisions")
}

func TestMetrics_AfterTick(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	rec := postJSON(t, s, "/tick", tickRequest{State: testState()}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	get := httptest.NewRecorder()
	s.Router().ServeHTTP(get, req)
	require.Equal(t, http.StatusOK, get.Code)

	body := decodeBody(t, get)
	latest, ok := body["latest"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), latest["tick"])
}

// Concurrent clients hitting tick, config and read routes must serialize on
// the controller rather than race over it. Run with -race.
func TestRoutes_ConcurrentTickAndConfig(t *testing.T) {
	s, _ := newTestServer(t, Config{GlobalTicksPerSecond: 100000})

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for i := 0; i < 30; i++ {
			st := testState()
			st.Tick = int64(1 + i)
			rec := postJSON(t, s, "/tick", tickRequest{State: st}, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 30; i++ {
			rec := postJSON(t, s, "/config", configRequest{
				Lock:   []string{"economy.gold.faucet_rate"},
				Unlock: []string{"economy.gold.faucet_rate"},
			}, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 30; i++ {
			for _, path := range []string{"/health", "/pending", "/decisions", "/metrics"} {
				req := httptest.NewRequest(http.MethodGet, path, nil)
				rec := httptest.NewRecorder()
				s.Router().ServeHTTP(rec, req)
				assert.Equal(t, http.StatusOK, rec.Code)
			}
		}
	}()

	wg.Wait()
}

func TestSanitizeMetadata_StripsPollutionKeys(t *testing.T) {
	in := map[string]any{
		"__proto__": map[string]any{"polluted": true},
		"nested": map[string]any{
			"constructor": "bad",
			"fine":        1,
		},
		"list": []any{map[string]any{"prototype": "bad", "ok": true}},
	}
	out := sanitizeMetadata(in)

	assert.NotContains(t, out, "__proto__")
	nested := out["nested"].(map[string]any)
	assert.NotContains(t, nested, "constructor")
	assert.Equal(t, 1, nested["fine"])
	item := out["list"].([]any)[0].(map[string]any)
	assert.NotContains(t, item, "prototype")
}

func TestTokenBucket_RefillsOverTime(t *testing.T) {
	tb := newTokenBucket(2, 1000)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	// Burst exhausted, but at 1000 tokens/s the next token arrives almost
	// immediately.
	assert.Eventually(t, tb.Allow, 100*time.Millisecond, time.Millisecond)
}
