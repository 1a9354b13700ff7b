package supervisor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoop_RejectsMissingCollaborators(t *testing.T) {
	_, err := NewLoop(Config{}, Deps{})
	assert.Error(t, err)
}

func TestState_StringsEveryValue(t *testing.T) {
	for _, s := range []State{Booting, Connecting, Streaming, ShuttingDown} {
		assert.NotEmpty(t, s.String())
	}
	assert.Equal(t, "unknown", State(99).String())
}

func TestStartup_SucceedsWithoutPublisher(t *testing.T) {
	loop := &Loop{
		cfg:  Config{InstanceID: "i1", Network: "base"},
		deps: Deps{Logger: nullLogger{}},
	}
	assert.NoError(t, loop.startup(context.Background()))
}

type failingHeartbeat struct{ err error }

func (f failingHeartbeat) Send(context.Context, string) error { return f.err }

func TestRunHeartbeat_StopsOnContextCancel(t *testing.T) {
	loop := &Loop{
		cfg: Config{HeartbeatInterval: 1},
		deps: Deps{
			Heartbeat: failingHeartbeat{err: errors.New("unreachable")},
			Logger:    nullLogger{},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		loop.runHeartbeat(ctx)
		close(done)
	}()
	<-done
}

func TestConfig_RestartDelayPrefersTestingDelay(t *testing.T) {
	cfg := Config{Testing: true, TestingRestartDelay: 1, RestartDelay: 100}
	assert.Equal(t, int64(1), cfg.restartDelay().Nanoseconds())
}

func TestConfig_RestartDelayFallsBackToDefault(t *testing.T) {
	cfg := Config{}
	assert.Greater(t, cfg.restartDelay().Nanoseconds(), int64(0))
}
