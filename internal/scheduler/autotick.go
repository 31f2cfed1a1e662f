package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/warden/internal/adapter"
	"github.com/aristath/warden/internal/controller"
)

// AutoTickJob pulls the current economy state from the host adapter and
// runs one controller tick. Scheduling it makes the regulator self-driving
// against hosts that only expose a state endpoint.
type AutoTickJob struct {
	ctrl    *controller.Controller
	host    adapter.Adapter
	timeout time.Duration
	log     zerolog.Logger
}

// NewAutoTickJob creates the job. A non-positive timeout defaults to 30s.
func NewAutoTickJob(ctrl *controller.Controller, host adapter.Adapter, timeout time.Duration, log zerolog.Logger) *AutoTickJob {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AutoTickJob{
		ctrl:    ctrl,
		host:    host,
		timeout: timeout,
		log:     log.With().Str("job", "auto_tick").Logger(),
	}
}

func (j *AutoTickJob) Name() string { return "auto_tick" }

func (j *AutoTickJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	state, err := j.host.GetState(ctx)
	if err != nil {
		return err
	}

	res, err := j.ctrl.Tick(ctx, state)
	if err != nil {
		return err
	}
	if len(res.Adjustments) > 0 || len(res.RolledBack) > 0 {
		j.log.Info().
			Int64("tick", res.Tick).
			Int("adjustments", len(res.Adjustments)).
			Int("rolled_back", len(res.RolledBack)).
			Msg("Auto tick applied changes")
	}
	return nil
}
