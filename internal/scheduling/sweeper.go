package scheduling

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/medagenda/clinic-scheduling/internal/observability/metrics"
)

// Sweeper cancels scheduled appointments whose payment deadline elapsed,
// releasing their slots back to availability. It owns no state between runs:
// the bulk cancel is one atomic statement, so rerunning or skipping cycles
// is always safe.
type Sweeper struct {
	repo    Repository
	metrics *metrics.SweeperMetrics
}

func NewSweeper(repo Repository, m *metrics.SweeperMetrics) *Sweeper {
	return &Sweeper{repo: repo, metrics: m}
}

// Sweep cancels every scheduled appointment with a payment deadline at or
// before now and returns how many were cancelled. Appointments without a
// deadline (staff-registered) and terminal statuses are never touched.
// Running twice with no new expirations returns 0 the second time.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int64, error) {
	started := time.Now()

	cancelled, err := s.repo.CancelExpired(ctx, now.UTC())
	if err != nil {
		s.metrics.ObserveSweepError()
		return 0, fmt.Errorf("cancel expired appointments: %w", err)
	}

	s.metrics.ObserveSweep(cancelled, time.Since(started).Seconds())

	if cancelled > 0 {
		log.Printf("sweep cancelled %d expired appointments", cancelled)
		s.logSweepEvent(ctx, cancelled, now)
	}
	return cancelled, nil
}

func (s *Sweeper) logSweepEvent(ctx context.Context, cancelled int64, now time.Time) {
	payload := []byte(fmt.Sprintf(`{"cancelled":%d,"as_of":%q}`, cancelled, now.UTC().Format(time.RFC3339)))
	ev := EventLog{
		EventType: EventBookingExpired,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert sweep event log: %v", err)
	}
}
