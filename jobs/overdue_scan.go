package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/Nehemiahnganjo/Karonga-village-Bank/internal/loans"
)

// LoanScanner exposes the read operations the overdue scan needs.
type LoanScanner interface {
	OverdueEntries(ctx context.Context) ([]loans.ScheduleEntry, error)
	VerifySchedule(ctx context.Context, loanID int64) error
}

// HandleOverdueScanTask returns the handler for TaskOverdueScan. It
// logs every overdue installment and re-verifies the schedule of each
// affected loan.
func HandleOverdueScanTask(scanner LoanScanner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		entries, err := scanner.OverdueEntries(ctx)
		if err != nil {
			return err
		}
		loanIDs := make(map[int64]struct{}, len(entries))
		for _, entry := range entries {
			loanIDs[entry.LoanID] = struct{}{}
			logger.Warn("installment overdue",
				slog.Int64("loan_id", entry.LoanID),
				slog.Int("payment_number", entry.PaymentNumber),
				slog.String("due_date", entry.DueDate.Format("2006-01-02")),
				slog.String("owed", entry.Owed().StringFixed(2)))
		}

		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for loanID := range loanIDs {
			loanID := loanID
			g.Go(func() error {
				if err := scanner.VerifySchedule(ctx, loanID); err != nil {
					logger.Error("schedule verification failed",
						slog.Int64("loan_id", loanID), slog.Any("error", err))
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		logger.Info("overdue scan completed",
			slog.Int("overdue_entries", len(entries)),
			slog.Int("loans_verified", len(loanIDs)))
		return nil
	}
}
