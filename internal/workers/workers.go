package workers

import (
	"time"

	"github.com/rs/zerolog/log"

	"callcrm/internal/engine/metrics"
	"callcrm/internal/engine/notify"
	"callcrm/internal/platform/models"
	"callcrm/internal/platform/repositories"
)

// RetryPendingDeliveries is the periodic sweep over the delivery log. Each
// due row is cleared and re-attempted; the notifier reschedules or
// terminates it based on the outcome.
func RetryPendingDeliveries(deliveries *repositories.DeliveryRepository, notifier *notify.Notifier) {
	due, err := deliveries.DueForRetry(time.Now())
	if err != nil {
		log.Error().Err(err).Msg("failed to query deliveries due for retry")
		return
	}
	if len(due) == 0 {
		return
	}

	log.Info().Int("count", len(due)).Msg("retrying pending deliveries")
	for _, delivery := range due {
		notifier.Retry(delivery)
	}
}

// SnapshotDailyMetrics recomputes yesterday's and today's aggregates and
// upserts them into call_metrics. Running it twice for the same date just
// replaces the row.
func SnapshotDailyMetrics(repo *metrics.Repository) error {
	now := time.Now().UTC()
	for _, offset := range []int{-1, 0} {
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)

		summary, err := repo.ComputeSummary(day.Unix(), day.Add(24*time.Hour).Unix())
		if err != nil {
			return err
		}

		snapshot := &models.MetricsSnapshot{
			Date:            day.Format("2006-01-02"),
			TotalCalls:      summary.TotalCalls,
			SuccessfulCalls: summary.SuccessfulCalls,
			FailedCalls:     summary.FailedCalls,
			ConnectedCalls:  summary.ConnectedCalls,
			AverageDuration: summary.AverageDuration,
			TotalDuration:   summary.TotalDuration,
			ConnectionRate:  summary.ConnectionRate,
			CompletionRate:  summary.CompletionRate,
		}
		if err := repo.UpsertSnapshot(snapshot); err != nil {
			return err
		}
	}
	return nil
}
