package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/dividends"
	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/settings"
)

type fakeDistributor struct {
	year      int
	recompute bool
	calls     int
	err       error
}

func (f *fakeDistributor) Distribute(ctx context.Context, year int, recompute bool) ([]dividends.DividendRecord, error) {
	f.calls++
	f.year = year
	f.recompute = recompute
	if f.err != nil {
		return nil, f.err
	}
	return []dividends.DividendRecord{{Year: year}}, nil
}

type fakeSettings struct {
	engine settings.Engine
	err    error
	calls  int
}

func (f *fakeSettings) Resolve(ctx context.Context) (settings.Engine, error) {
	f.calls++
	return f.engine, f.err
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

func distributeTask(t *testing.T, payload DistributePayload) *asynq.Task {
	t.Helper()
	task, err := NewDistributeTask(payload)
	require.NoError(t, err)
	return task
}

func TestHandleDistributeExplicitYear(t *testing.T) {
	dist := &fakeDistributor{}
	source := &fakeSettings{err: errors.New("unreachable")}
	handler := HandleDistributeTask(dist, source, nil, testLogger())

	err := handler(context.Background(), distributeTask(t, DistributePayload{Year: 2025, Recompute: true}))
	require.NoError(t, err)
	require.Equal(t, 2025, dist.year)
	require.True(t, dist.recompute)
	require.Zero(t, source.calls, "an explicit year needs no settings lookup")
}

func TestHandleDistributeResolvesYearFromSettings(t *testing.T) {
	dist := &fakeDistributor{}
	source := &fakeSettings{engine: settings.Defaults()}
	handler := HandleDistributeTask(dist, source, nil, testLogger())

	err := handler(context.Background(), distributeTask(t, DistributePayload{}))
	require.NoError(t, err)
	require.Equal(t, 1, source.calls)
	require.Equal(t, closedYear(source.engine, time.Now()), dist.year)
	require.False(t, dist.recompute)
}

func TestHandleDistributeConservationFailureSkipsRetry(t *testing.T) {
	dist := &fakeDistributor{err: dividends.ErrFundConservation}
	handler := HandleDistributeTask(dist, &fakeSettings{}, nil, testLogger())

	err := handler(context.Background(), distributeTask(t, DistributePayload{Year: 2025}))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Equal(t, 1, dist.calls)
}

func TestHandleDistributePaidYearSkipsRetry(t *testing.T) {
	dist := &fakeDistributor{err: dividends.ErrYearAlreadyPaid}
	handler := HandleDistributeTask(dist, &fakeSettings{}, nil, testLogger())

	err := handler(context.Background(), distributeTask(t, DistributePayload{Year: 2025}))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleDistributeTransientErrorRetries(t *testing.T) {
	dist := &fakeDistributor{err: errors.New("connection reset")}
	handler := HandleDistributeTask(dist, &fakeSettings{}, nil, testLogger())

	err := handler(context.Background(), distributeTask(t, DistributePayload{Year: 2025}))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleDistributeBadPayloadSkipsRetry(t *testing.T) {
	dist := &fakeDistributor{}
	handler := HandleDistributeTask(dist, &fakeSettings{}, nil, testLogger())

	err := handler(context.Background(), asynq.NewTask(TaskDistributeDividends, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, dist.calls)
}

func TestClosedYear(t *testing.T) {
	engine := settings.Defaults()
	engine.YearEndMonth = time.June
	engine.YearEndDay = 30

	require.Equal(t, 2024,
		closedYear(engine, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, 2025,
		closedYear(engine, time.Date(2025, time.July, 1, 1, 0, 0, 0, time.UTC)))

	calendar := settings.Defaults()
	require.Equal(t, 2025,
		closedYear(calendar, time.Date(2026, time.January, 2, 1, 0, 0, 0, time.UTC)))
	require.Equal(t, 2025,
		closedYear(calendar, time.Date(2026, time.December, 31, 12, 0, 0, 0, time.UTC)))
}

func TestDistributeCronSpec(t *testing.T) {
	require.Equal(t, "0 1 1 1 *", DistributeCronSpec(settings.Defaults()))

	midYear := settings.Defaults()
	midYear.YearEndMonth = time.June
	midYear.YearEndDay = 30
	require.Equal(t, "0 1 1 7 *", DistributeCronSpec(midYear))
}
