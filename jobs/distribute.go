package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/dividends"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/observability"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/settings"
)

// Distributor runs year-end dividend distribution.
type Distributor interface {
	Distribute(ctx context.Context, year int, recompute bool) ([]dividends.DividendRecord, error)
}

// SettingsSource supplies the configured financial year boundary.
type SettingsSource interface {
	Resolve(ctx context.Context) (settings.Engine, error)
}

// HandleDistributeTask returns the handler for TaskDistributeDividends.
// A payload without a year targets the financial year whose configured
// end boundary most recently passed, which is what the year-end cron
// enqueues. Conservation failures and already-paid years are not
// retried: they need an administrator, not another attempt.
func HandleDistributeTask(distributor Distributor, source SettingsSource, metrics *observability.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload DistributePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("jobs: distribute payload: %v: %w", err, asynq.SkipRetry)
		}
		year := payload.Year
		if year == 0 {
			engine, err := source.Resolve(ctx)
			if err != nil {
				return fmt.Errorf("jobs: resolve year boundary: %w", err)
			}
			year = closedYear(engine, time.Now())
		}
		records, err := distributor.Distribute(ctx, year, payload.Recompute)
		if err != nil {
			if errors.Is(err, dividends.ErrFundConservation) {
				if metrics != nil {
					metrics.ConservationFailures.Inc()
				}
				logger.Error("distribution aborted",
					slog.Int("year", year), slog.Any("error", err))
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			if errors.Is(err, dividends.ErrYearAlreadyPaid) {
				logger.Warn("distribution skipped",
					slog.Int("year", year), slog.Any("error", err))
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			return err
		}
		if metrics != nil {
			metrics.Distributions.Inc()
		}
		logger.Info("distribution completed",
			slog.Int("year", year), slog.Int("records", len(records)))
		return nil
	}
}

// closedYear returns the financial year whose end boundary most
// recently passed. Right after a December 31 boundary that is the year
// just ended; with a mid-year boundary like 06-30 it is the previous
// calendar year until the next boundary passes.
func closedYear(engine settings.Engine, now time.Time) int {
	if now.After(engine.YearEnd(now.Year())) {
		return now.Year()
	}
	return now.Year() - 1
}

// DistributeCronSpec derives the cron expression that fires the
// distribution run just after the configured financial year end.
func DistributeCronSpec(engine settings.Engine) string {
	boundary := time.Date(2000, engine.YearEndMonth, engine.YearEndDay, 0, 0, 0, 0, time.UTC)
	next := boundary.AddDate(0, 0, 1)
	return fmt.Sprintf("0 1 %d %d *", next.Day(), int(next.Month()))
}
