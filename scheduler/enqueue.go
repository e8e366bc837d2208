package scheduler

import (
	"context"

	"github.com/riftdb/rift/funrun"
	"github.com/riftdb/rift/metrics"
	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/value"
)

// Schedule inserts a new job row, due at scheduledTS, returning its id.
func Schedule(ctx context.Context, s *store.Store, identity store.Identity, fn funrun.Source, kind funrun.Kind, args value.Value, scheduledTS int64) (value.DocumentID, error) {
	txn, handle := s.Begin(identity)
	defer handle.Release()

	id := value.NewDocumentID(store.ScheduledJobsTableNumber)
	job := Job{ID: id, Function: fn, Kind: kind, Args: args, ScheduledTS: scheduledTS, State: StatePending}
	if err := txn.Insert(store.ScheduledJobsTableName, id, jobToValue(job)); err != nil {
		return value.DocumentID{}, err
	}
	if _, err := txn.Commit(ctx, s.Committer()); err != nil {
		return value.DocumentID{}, err
	}
	metrics.JobsEnqueuedTotal.Inc()
	return id, nil
}

// ScheduleCron registers a recurring job firing every intervalMillis,
// first due at firstRunTS.
func ScheduleCron(ctx context.Context, s *store.Store, identity store.Identity, fn funrun.Source, kind funrun.Kind, args value.Value, intervalMillis, firstRunTS int64) (value.DocumentID, error) {
	txn, handle := s.Begin(identity)
	defer handle.Release()

	id := value.NewDocumentID(store.CronJobsTableNumber)
	entry := CronEntry{
		ID: id, Function: fn, Kind: kind, Args: args,
		IntervalMillis: intervalMillis, NextRunTS: firstRunTS, Enabled: true,
	}
	if err := txn.Insert(store.CronJobsTableName, id, cronToValue(entry)); err != nil {
		return value.DocumentID{}, err
	}
	if _, err := txn.Commit(ctx, s.Committer()); err != nil {
		return value.DocumentID{}, err
	}
	return id, nil
}

// Cancel transactionally flips a pending job to StateCanceled, per
// §4.14's "Canceled" state transition checked before execution; a job
// already picked up by a worker (no longer Pending) is left alone.
func Cancel(ctx context.Context, s *store.Store, identity store.Identity, jobID value.DocumentID) error {
	txn, handle := s.Begin(identity)
	defer handle.Release()

	doc, err := txn.Get(jobID)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	job := jobFromDocument(doc)
	if job.State != StatePending {
		return nil
	}
	job.State = StateCanceled
	if err := txn.Replace(jobID, jobToValue(job)); err != nil {
		return err
	}
	_, err = txn.Commit(ctx, s.Committer())
	return err
}
