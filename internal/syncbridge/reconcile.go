package syncbridge

import (
	"context"
	"log"

	"hadirku/internal/attendance"
	"hadirku/internal/metrics"
)

// LedgerSource is the slice of the attendance repository reconciliation needs.
type LedgerSource interface {
	Unsynced(ctx context.Context) ([]attendance.Record, error)
	MarkSynced(ctx context.Context, studentID, date string) error
}

// RecordPusher mirrors one record.
type RecordPusher interface {
	PushRecord(ctx context.Context, rec attendance.Record) error
}

// Reconcile re-sends every unsynced ledger row and flips the synced flag on
// confirmed delivery only. There is no dedup beyond the flag: a row pushed
// twice is the mirror's problem to collapse, keyed on (studentId, date).
func Reconcile(ctx context.Context, pusher RecordPusher, ledger LedgerSource) (pushed int, err error) {
	recs, err := ledger.Unsynced(ctx)
	if err != nil {
		return 0, err
	}
	for _, rec := range recs {
		if ctx.Err() != nil {
			return pushed, ctx.Err()
		}
		if err := pusher.PushRecord(ctx, rec); err != nil {
			metrics.SyncPushTotal.WithLabelValues("error").Inc()
			continue
		}
		if err := ledger.MarkSynced(ctx, rec.StudentID, rec.Date); err != nil {
			log.Printf("mark synced %s/%s failed: %v", rec.StudentID, rec.Date, err)
			continue
		}
		metrics.SyncPushTotal.WithLabelValues("ok").Inc()
		pushed++
	}
	return pushed, nil
}
