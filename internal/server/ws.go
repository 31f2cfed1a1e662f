package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/warden/internal/controller"
	"github.com/aristath/warden/internal/domain"
	"github.com/aristath/warden/internal/observer"
	"github.com/aristath/warden/internal/validate"
)

const (
	wsReadLimit         = 1 << 20
	wsHeartbeatInterval = 30 * time.Second
)

// wsEnvelope is the client message frame. Type selects the operation, the
// remaining fields carry its payload.
type wsEnvelope struct {
	Type   string                 `json:"type"`
	ID     string                 `json:"id,omitempty"`
	State  *domain.EconomyState   `json:"state,omitempty"`
	Events []domain.EconomicEvent `json:"events,omitempty"`
	Event  *domain.EconomicEvent  `json:"event,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if s.cfg.AllowedOrigin != "" {
		opts.OriginPatterns = []string{originPattern(s.cfg.AllowedOrigin)}
	} else {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection closed")

	if s.cfg.APIKey != "" && !s.wsAuthorized(r) {
		conn.Close(websocket.StatusPolicyViolation, "unauthorized")
		return
	}

	conn.SetReadLimit(wsReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.wsHeartbeat(ctx, cancel, conn)

	connTicks := newTokenBucket(s.cfg.ConnTicksPerSecond, s.cfg.ConnTicksPerSecond)

	for {
		var env wsEnvelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			s.wsError(ctx, conn, env.ID, "invalid_message")
			conn.Close(websocket.StatusUnsupportedData, "malformed frame")
			return
		}
		s.wsDispatch(ctx, conn, connTicks, env)
	}
}

// wsHeartbeat pings on an interval and tears the connection down after one
// missed pong.
func (s *Server) wsHeartbeat(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	ticker := time.NewTicker(wsHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, wsHeartbeatInterval)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				s.log.Debug().Err(err).Msg("websocket heartbeat failed, closing")
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				cancel()
				return
			}
		}
	}
}

func (s *Server) wsDispatch(ctx context.Context, conn *websocket.Conn, connTicks *tokenBucket, env wsEnvelope) {
	switch env.Type {
	case "tick":
		s.wsTick(ctx, conn, connTicks, env)
	case "event":
		s.wsEvent(ctx, conn, env)
	case "diagnose":
		s.wsDiagnose(ctx, conn, env)
	case "health":
		s.wsWrite(ctx, conn, map[string]any{
			"type":   "health_result",
			"id":     env.ID,
			"health": s.ctrl.HealthScore(),
			"tick":   s.ctrl.CurrentTick(),
			"mode":   s.ctrl.Mode(),
		})
	default:
		s.wsError(ctx, conn, env.ID, "unknown_type")
	}
}

func (s *Server) wsTick(ctx context.Context, conn *websocket.Conn, connTicks *tokenBucket, env wsEnvelope) {
	if !connTicks.Allow() || !s.globalTicks.Allow() {
		s.wsError(ctx, conn, env.ID, "rate_limited")
		return
	}
	if v := validate.State(env.State); !v.Valid {
		s.wsWrite(ctx, conn, map[string]any{
			"type":             "validation_error",
			"id":               env.ID,
			"validationErrors": v.Errors,
		})
		return
	}

	for _, ev := range env.Events {
		ev.Metadata = sanitizeMetadata(ev.Metadata)
		s.ctrl.Ingest(ev)
	}

	var res *controller.TickResult
	err := s.runTick(ctx, func(ctx context.Context) error {
		var tickErr error
		res, tickErr = s.ctrl.Tick(ctx, env.State)
		return tickErr
	})
	if err != nil {
		s.wsError(ctx, conn, env.ID, "tick_failed")
		return
	}

	s.wsWrite(ctx, conn, map[string]any{
		"type":        "tick_result",
		"id":          env.ID,
		"tick":        res.Tick,
		"health":      res.Health,
		"alerts":      res.Alerts,
		"adjustments": res.Adjustments,
	})
}

func (s *Server) wsEvent(ctx context.Context, conn *websocket.Conn, env wsEnvelope) {
	if env.Event == nil {
		s.wsError(ctx, conn, env.ID, "missing_event")
		return
	}
	ev := *env.Event
	ev.Metadata = sanitizeMetadata(ev.Metadata)
	s.ctrl.Ingest(ev)
	s.wsWrite(ctx, conn, map[string]any{"type": "event_result", "id": env.ID, "ok": true})
}

func (s *Server) wsDiagnose(ctx context.Context, conn *websocket.Conn, env wsEnvelope) {
	if v := validate.State(env.State); !v.Valid {
		s.wsWrite(ctx, conn, map[string]any{
			"type":             "validation_error",
			"id":               env.ID,
			"validationErrors": v.Errors,
		})
		return
	}
	obs := observer.New(s.log)
	metrics, err := obs.Compute(env.State, nil)
	if err != nil {
		s.wsError(ctx, conn, env.ID, "observer_failure")
		return
	}
	th := s.ctrl.Thresholds()
	s.wsWrite(ctx, conn, map[string]any{
		"type":      "diagnose_result",
		"id":        env.ID,
		"health":    controller.HealthOf(metrics),
		"diagnoses": s.ctrl.Diagnoser().Diagnose(metrics, &th),
	})
}

func (s *Server) wsWrite(ctx context.Context, conn *websocket.Conn, body any) {
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, body); err != nil {
		s.log.Debug().Err(err).Msg("websocket write failed")
	}
}

func (s *Server) wsError(ctx context.Context, conn *websocket.Conn, id, code string) {
	s.wsWrite(ctx, conn, map[string]any{"type": "error", "id": id, "error": code})
}

// wsAuthorized accepts the key from the Authorization header or, for
// browser clients that cannot set headers on the upgrade, a token query
// parameter.
func (s *Server) wsAuthorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	if token := strings.TrimPrefix(header, "Bearer "); header != token && token == s.cfg.APIKey {
		return true
	}
	return r.URL.Query().Get("token") == s.cfg.APIKey
}

// originPattern reduces a configured origin URL to the host pattern the
// websocket library matches against.
func originPattern(origin string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	return strings.TrimSuffix(trimmed, "/")
}
