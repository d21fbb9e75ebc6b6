package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// Scheduler enqueues one-off delivery jobs at their scheduled time. It
// satisfies the messages service scheduler contract.
type Scheduler struct {
	Client *river.Client[pgx.Tx]
}

func (s *Scheduler) ScheduleMessageDelivery(ctx context.Context, messageID string, at time.Time) error {
	if s.Client == nil {
		return fmt.Errorf("river client not configured")
	}
	opts := InsertOptsForKind(JobKindMessageDelivery)
	opts.ScheduledAt = at
	_, err := s.Client.Insert(ctx, MessageDeliveryArgs{MessageID: messageID}, &opts)
	return err
}
