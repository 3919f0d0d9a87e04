package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/ankichat/ankichat/internal/anki"
	"github.com/ankichat/ankichat/internal/api/respond"
	"github.com/ankichat/ankichat/internal/llm"
)

// dependency health flags (1 = reachable, 0 = not)
var (
	ankiUp atomic.Int32
	llmUp  atomic.Int32
)

// HealthHandler reports backend and model reachability.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler { return &HealthHandler{} }

// StartHealthMonitor launches a background goroutine probing AnkiConnect and
// the language model every interval. Each probe retries briefly with constant
// backoff before flipping a flag, so one dropped packet does not mark the
// service degraded.
func StartHealthMonitor(ctx context.Context, backend anki.Connector, m llm.Model, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		probe := func() {
			policy := func() backoff.BackOff {
				return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 2)
			}

			errAnki := backoff.Retry(func() error {
				_, err := backend.Version(ctx)
				return err
			}, backoff.WithContext(policy(), ctx))
			setFlag(&ankiUp, errAnki == nil)
			if errAnki != nil {
				log.Warn().Err(errAnki).Msg("AnkiConnect unreachable")
			}

			errLLM := backoff.Retry(func() error {
				return m.Ping(ctx)
			}, backoff.WithContext(policy(), ctx))
			setFlag(&llmUp, errLLM == nil)
			if errLLM != nil {
				log.Warn().Err(errLLM).Msg("language model unreachable")
			}
		}

		// initial probe immediately
		probe()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

func setFlag(f *atomic.Int32, up bool) {
	if up {
		f.Store(1)
	} else {
		f.Store(0)
	}
}

// CheckHealth handles GET /api/health.
// Always returns 200; the body reports per-dependency state.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	anki := ankiUp.Load() == 1
	llmOK := llmUp.Load() == 1

	status := "healthy"
	if !anki || !llmOK {
		status = "degraded"
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":       status,
		"anki_connect": anki,
		"llm":          llmOK,
		"timestamp":    time.Now().Format(time.RFC3339),
	})
}
