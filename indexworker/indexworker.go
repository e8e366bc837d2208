// Package indexworker implements the co-operative index-worker scheduler
// (C12): per-index backfill, flush, compaction, and fast-forward workers
// driving a text.Index/vector.Index through its Backfilling ->
// Backfilled -> SnapshottedAt lifecycle.
package indexworker

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/riftdb/rift/search/text"
	"github.com/riftdb/rift/search/vector"
	"github.com/riftdb/rift/store"
	"github.com/rs/zerolog"
)

// Config tunes the shared worker policy from §4.12.
type Config struct {
	SegmentBatchSize   int
	FlushInterval      time.Duration
	FastForwardWindow  time.Duration
	CompactionMinSmall int // number of small segments that triggers a merge
	PollInterval       time.Duration
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	MaxOCCFailures     int
}

// DefaultConfig matches the constants named in §9's glossary
// (INDEX_WORKERS_INITIAL_BACKOFF = 1s, ceiling 60s).
func DefaultConfig() Config {
	return Config{
		SegmentBatchSize:   1000,
		FlushInterval:      5 * time.Second,
		FastForwardWindow:  30 * time.Second,
		CompactionMinSmall: 4,
		PollInterval:       1 * time.Second,
		InitialBackoff:     1 * time.Second,
		MaxBackoff:         60 * time.Second,
		MaxOCCFailures:     5,
	}
}

var unboundedHi = bytes.Repeat([]byte{0xFF}, 64)

// Orchestrator runs every index worker, polling the snapshot's index
// registry to discover indexes needing attention. One goroutine per live
// index keeps this simple rather than event-driven, matching §4.12's
// "co-operative scheduler" framing.
type Orchestrator struct {
	store  *store.Store
	texts  *text.Manager
	vecs   *vector.Manager
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	running map[uint32]context.CancelFunc
	wg      sync.WaitGroup

	lastWrite map[uint32]time.Time
}

// NewOrchestrator wires an Orchestrator over the given store and search
// managers.
func NewOrchestrator(s *store.Store, texts *text.Manager, vecs *vector.Manager, cfg Config, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     s,
		texts:     texts,
		vecs:      vecs,
		cfg:       cfg,
		logger:    logger,
		running:   make(map[uint32]context.CancelFunc),
		lastWrite: make(map[uint32]time.Time),
	}
}

// NoteWrite records that an index's table received a write, resetting its
// fast-forward idle window; callers hook this to store.IndexSink dispatch.
func (o *Orchestrator) NoteWrite(indexID uint32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastWrite[indexID] = time.Now()
}

// Run polls the index registry until ctx is canceled, starting a worker
// goroutine for every index that needs one and honoring shutdown() for
// indexes that are dropped or reach a terminal state.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			o.shutdownAll()
			o.wg.Wait()
			return
		case <-ticker.C:
			o.reconcile(ctx)
		}
	}
}

func (o *Orchestrator) shutdownAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, cancel := range o.running {
		cancel()
		delete(o.running, id)
	}
}

func (o *Orchestrator) reconcile(parent context.Context) {
	snap := o.store.Snapshots().Latest()
	live := make(map[uint32]bool)

	for _, meta := range snap.Indexes.All() {
		if meta.Kind == store.IndexKindDatabase {
			continue // database indexes are materialized synchronously by the committer
		}
		if meta.Name == store.ByIDIndexName {
			continue
		}
		live[meta.ID] = true

		o.mu.Lock()
		_, alreadyRunning := o.running[meta.ID]
		o.mu.Unlock()
		if alreadyRunning {
			continue
		}

		ctx, cancel := context.WithCancel(parent)
		o.mu.Lock()
		o.running[meta.ID] = cancel
		o.mu.Unlock()

		meta := meta
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.runIndex(ctx, meta.ID)
		}()
	}

	o.mu.Lock()
	for id, cancel := range o.running {
		if !live[id] {
			cancel()
			delete(o.running, id)
		}
	}
	o.mu.Unlock()
}

// runIndex drives one index through backfill, then loops flush/fast-
// forward/compaction until shut down, per §4.12's worker set.
func (o *Orchestrator) runIndex(ctx context.Context, indexID uint32) {
	meta, ok := o.store.Snapshots().Latest().Indexes.ByID(indexID)
	if !ok {
		return
	}
	if meta.Phase == store.PhaseBackfilling {
		if err := o.backfill(ctx, indexID); err != nil {
			o.logger.Warn().Err(err).Uint32("index_id", indexID).Msg("index backfill failed")
			return
		}
	}

	flushTicker := time.NewTicker(o.cfg.FlushInterval)
	defer flushTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-flushTicker.C:
			o.flushOrFastForward(ctx, indexID)
			o.maybeCompact(ctx, indexID)
		}
	}
}
