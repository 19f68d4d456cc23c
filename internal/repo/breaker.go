package repo

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tbourn/go-devradar-backend/internal/domain"
)

// OnlineLister is the roster read path.
type OnlineLister interface {
	ListOnlineCheckIns(ctx context.Context) ([]domain.CheckIn, error)
}

// BreakerConfig tunes GuardedRoster. Zero values select the defaults.
type BreakerConfig struct {
	Failures uint32        // consecutive failures that open the circuit (default 5)
	Cooldown time.Duration // time spent open before a probe (default 30s)
}

// GuardedRoster wraps the online listing in a circuit breaker so a failing
// store is not queried on every change event. While open, calls fail fast
// with gobreaker.ErrOpenState.
type GuardedRoster struct {
	next OnlineLister
	cb   *gobreaker.CircuitBreaker[[]domain.CheckIn]
}

// NewGuardedRoster returns a breaker-protected OnlineLister over next.
func NewGuardedRoster(next OnlineLister, cfg BreakerConfig, log zerolog.Logger) *GuardedRoster {
	if cfg.Failures == 0 {
		cfg.Failures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "roster-store",
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			ev := log.Info()
			if to == gobreaker.StateOpen {
				ev = log.Warn()
			}
			ev.Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	return &GuardedRoster{next: next, cb: gobreaker.NewCircuitBreaker[[]domain.CheckIn](settings)}
}

// ListOnlineCheckIns implements OnlineLister.
func (g *GuardedRoster) ListOnlineCheckIns(ctx context.Context) ([]domain.CheckIn, error) {
	return g.cb.Execute(func() ([]domain.CheckIn, error) {
		return g.next.ListOnlineCheckIns(ctx)
	})
}

// State reports the breaker state ("closed", "open", "half-open").
func (g *GuardedRoster) State() string { return g.cb.State().String() }
