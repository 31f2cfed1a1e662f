package scheduler

import (
	"context"
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

func pullState() *domain.EconomyState {
	return &domain.EconomyState{
		Tick:       7,
		Roles:      []string{"producer"},
		Currencies: []string{"gold"},
		AgentBalances: map[string]map[string]float64{
			"a": {"gold": 40},
		},
		AgentRoles: map[string]string{"a": "producer"},
	}
}

func TestAutoTickJob_PullsAndTicks(t *testing.T) {
	host := adapter.NewMemory(pullState())
	ctrl := controller.New(controller.Config{ValidateRegistry: false}, host, zerolog.Nop())
	ctrl.Start()

	job := NewAutoTickJob(ctrl, host, time.Second, zerolog.Nop())
	require.NoError(t, job.Run())
	assert.Equal(t, int64(7), ctrl.CurrentTick())
}

func TestAutoTickJob_StoppedControllerIsNoop(t *testing.T) {
	host := adapter.NewMemory(pullState())
	ctrl := controller.New(controller.Config{ValidateRegistry: false}, host, zerolog.Nop())

	job := NewAutoTickJob(ctrl, host, time.Second, zerolog.Nop())
	require.NoError(t, job.Run())
	assert.Equal(t, int64(0), ctrl.CurrentTick())
}

func TestScheduler_RunNow(t *testing.T) {
	host := adapter.NewMemory(pullState())
	ctrl := controller.New(controller.Config{ValidateRegistry: false}, host, zerolog.Nop())
	ctrl.Start()

	s := New(zerolog.Nop())
	require.NoError(t, s.RunNow(NewAutoTickJob(ctrl, host, time.Second, zerolog.Nop())))
	assert.Equal(t, int64(7), ctrl.CurrentTick())
}

// Cron fires jobs on their own goroutines, so an auto tick can overlap a
// transport-driven tick; both paths must serialize inside the controller.
// Run with -race.
func TestAutoTickJob_ConcurrentWithDirectTicks(t *testing.T) {
	host := adapter.NewMemory(pullState())
	ctrl := controller.New(controller.Config{ValidateRegistry: false}, host, zerolog.Nop())
	ctrl.Start()

	job := NewAutoTickJob(ctrl, host, time.Second, zerolog.Nop())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			assert.NoError(t, job.Run())
		}
	}()
	go func() {
		defer wg.Done()
		for i := int64(0); i < 50; i++ {
			s := pullState()
			s.Tick = 10 + i
			_, err := ctrl.Tick(context.Background(), s)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()
}

func TestScheduler_AddJobBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", NewAutoTickJob(nil, nil, 0, zerolog.Nop()))
	assert.Error(t, err)
}
