package scheduler

import (
	"context"

	"github.com/riftdb/rift/store"
)

// Bootstrap ensures the two system tables each carry the index the
// worker's due-job scan needs. Safe to call repeatedly: an index already
// registered under the given name is left untouched.
func Bootstrap(ctx context.Context, s *store.Store) error {
	indexes := s.Snapshots().Latest().Indexes
	if _, exists := indexes.ByName(store.ScheduledJobsTableNumber, ScheduledJobsIndexByTS); !exists {
		if _, err := s.CreateIndex(ctx, store.IndexMeta{
			Name:        ScheduledJobsIndexByTS,
			TableNumber: store.ScheduledJobsTableNumber,
			Kind:        store.IndexKindDatabase,
			Fields:      []string{"scheduled_ts"},
		}); err != nil {
			return err
		}
	}
	if _, exists := indexes.ByName(store.CronJobsTableNumber, CronJobsIndexByNextRun); !exists {
		if _, err := s.CreateIndex(ctx, store.IndexMeta{
			Name:        CronJobsIndexByNextRun,
			TableNumber: store.CronJobsTableNumber,
			Kind:        store.IndexKindDatabase,
			Fields:      []string{"next_run_ts"},
		}); err != nil {
			return err
		}
	}
	return nil
}
