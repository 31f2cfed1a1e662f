package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"runtime"
	"strconv"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/warden/internal/controller"
	"github.com/aristath/warden/internal/decisionlog"
	"github.com/aristath/warden/internal/domain"
	"github.com/aristath/warden/internal/metricstore"
	"github.com/aristath/warden/internal/observer"
	"github.com/aristath/warden/internal/validate"
)

// maxBodyBytes caps request bodies on every JSON route.
const maxBodyBytes = 1 << 20

type tickRequest struct {
	State  *domain.EconomyState   `json:"state"`
	Events []domain.EconomicEvent `json:"events,omitempty"`
}

type diagnoseRequest struct {
	State *domain.EconomyState `json:"state"`
}

type configRequest struct {
	Lock      []string                     `json:"lock,omitempty"`
	Unlock    []string                     `json:"unlock,omitempty"`
	Constrain map[string]domain.Constraint `json:"constrain,omitempty"`
}

type decisionRequest struct {
	DecisionID string `json:"decisionId"`
	Reason     string `json:"reason,omitempty"`
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	if !s.globalTicks.Allow() {
		s.writeError(w, http.StatusTooManyRequests, "rate_limited", nil)
		return
	}

	var req tickRequest
	if !s.decodeStrict(w, r, &req) {
		return
	}
	if v := validate.State(req.State); !v.Valid {
		s.writeError(w, http.StatusBadRequest, "invalid_state", map[string]any{"validationErrors": v.Errors})
		return
	}

	for _, ev := range req.Events {
		ev.Metadata = sanitizeMetadata(ev.Metadata)
		s.ctrl.Ingest(ev)
	}

	var res *controller.TickResult
	err := s.runTick(r.Context(), func(ctx context.Context) error {
		var tickErr error
		res, tickErr = s.ctrl.Tick(ctx, req.State)
		return tickErr
	})
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "adapter_failure", map[string]any{"message": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"tick":        res.Tick,
		"health":      res.Health,
		"alerts":      res.Alerts,
		"adjustments": res.Adjustments,
	})
}

// handleDiagnose runs observation and diagnosis on a throwaway observer so
// nothing leaks into the live pipeline.
func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	var req diagnoseRequest
	if !s.decodeStrict(w, r, &req) {
		return
	}
	if v := validate.State(req.State); !v.Valid {
		s.writeError(w, http.StatusBadRequest, "invalid_state", map[string]any{"validationErrors": v.Errors})
		return
	}

	obs := observer.New(s.log)
	metrics, err := obs.Compute(req.State, nil)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, "observer_failure", map[string]any{"message": err.Error()})
		return
	}
	th := s.ctrl.Thresholds()
	diagnoses := s.ctrl.Diagnoser().Diagnose(metrics, &th)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"health":    controller.HealthOf(metrics),
		"diagnoses": diagnoses,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if !s.decodeStrict(w, r, &req) {
		return
	}
	for _, key := range req.Lock {
		s.ctrl.LockParam(key)
	}
	for _, key := range req.Unlock {
		s.ctrl.UnlockParam(key)
	}
	for key, c := range req.Constrain {
		s.ctrl.SetConstraint(key, c)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !s.decodeStrict(w, r, &req) {
		return
	}
	if s.ctrl.Mode() != controller.ModeAdvisor {
		s.writeError(w, http.StatusBadRequest, "not_in_advisor_mode", nil)
		return
	}
	if err := s.ctrl.Approve(r.Context(), req.DecisionID); err != nil {
		s.writeError(w, http.StatusBadRequest, "approve_failed", map[string]any{"message": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !s.decodeStrict(w, r, &req) {
		return
	}
	if s.ctrl.Mode() != controller.ModeAdvisor {
		s.writeError(w, http.StatusBadRequest, "not_in_advisor_mode", nil)
		return
	}
	if err := s.ctrl.Reject(req.DecisionID, req.Reason); err != nil {
		s.writeError(w, http.StatusBadRequest, "reject_failed", map[string]any{"message": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"health":      s.ctrl.HealthScore(),
		"uptime":      s.ctrl.Uptime().Seconds(),
		"mode":        s.ctrl.Mode(),
		"tick":        s.ctrl.CurrentTick(),
		"activePlans": s.ctrl.ActivePlanCount(),
	})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	var f decisionlog.Filter
	if v, ok := queryInt(r, "since"); ok {
		f.Since = &v
	}
	if v, ok := queryInt(r, "until"); ok {
		f.Until = &v
	}
	decisions := s.ctrl.Decisions().Query(f)

	if v, ok := queryInt(r, "limit"); ok && v > 0 && int64(len(decisions)) > v {
		decisions = decisions[int64(len(decisions))-v:]
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"decisions": decisions})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	store := s.ctrl.Metrics()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"latest":  store.Latest(metricstore.Fine),
		"history": store.Snapshots(metricstore.Fine, 100),
	})
}

func (s *Server) handlePrinciples(w http.ResponseWriter, r *http.Request) {
	type principleView struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Category    string `json:"category"`
		Description string `json:"description"`
	}
	list := s.ctrl.Diagnoser().List()
	out := make([]principleView, 0, len(list))
	for _, p := range list {
		out = append(out, principleView{
			ID: p.ID(), Name: p.Name(), Category: p.Category(), Description: p.Description(),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "principles": out})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	pending := s.ctrl.Pending()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"mode":    s.ctrl.Mode(),
		"pending": pending,
		"count":   len(pending),
	})
}

// handleSystem reports process host vitals.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"goroutines": runtime.NumGoroutine(),
		"goVersion":  runtime.Version(),
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		out["cpuPercent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		out["memUsedPercent"] = vm.UsedPercent
		out["memTotalBytes"] = vm.Total
	}
	if up, err := host.Uptime(); err == nil {
		out["hostUptimeSec"] = up
	}
	s.writeJSON(w, http.StatusOK, out)
}

// decodeStrict parses a JSON body rejecting unknown fields and oversized
// payloads.
func (s *Server) decodeStrict(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", map[string]any{"message": err.Error()})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code string, extra map[string]any) {
	body := map[string]any{"error": code}
	for k, v := range extra {
		body[k] = v
	}
	s.writeJSON(w, status, body)
}

func queryInt(r *http.Request, key string) (int64, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// sanitizeMetadata strips prototype-polluting keys recursively. The keys
// are meaningless to Go maps but events are forwarded to JavaScript
// dashboard clients verbatim.
func sanitizeMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == "__proto__" || k == "constructor" || k == "prototype" {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return sanitizeMetadata(t)
	case []any:
		for i := range t {
			t[i] = sanitizeValue(t[i])
		}
		return t
	default:
		return v
	}
}
