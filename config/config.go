// Package config holds the process-wide knobs read once at startup (§6).
// Loading them from a CLI flag set, environment, or file is an external
// concern (§1 Non-goals); this package only defines the struct and defaults.
package config

import "time"

// LogFormat selects the structured log encoder.
type LogFormat string

const (
	LogFormatJSON    LogFormat = "json"
	LogFormatCompact LogFormat = "compact"
	LogFormatPretty  LogFormat = "pretty"
)

// Config collects every knob enumerated in spec.md §6.
type Config struct {
	// MaxOCCFailures is the retry ceiling a caller should apply to
	// OptimisticConcurrencyControl before giving up.
	MaxOCCFailures int

	// TransactionMaxUserWriteSizeBytes bounds one commit's staged writes.
	TransactionMaxUserWriteSizeBytes int64

	// MaxBytesWrittenPerSecond and WriteThroughputWindow configure the
	// committer's back-pressure limiter (§4.8).
	MaxBytesWrittenPerSecond int64
	WriteThroughputWindow    time.Duration

	// IndexWorkersInitialBackoff is the base backoff for index workers (§4.12).
	IndexWorkersInitialBackoff time.Duration
	IndexWorkersMaxBackoff     time.Duration

	// UDFExecutorOCCMaxRetries bounds OCC errors tolerated silently by
	// the function executor before they are reported.
	UDFExecutorOCCMaxRetries int

	// FunRunModuleCacheSize bounds the function runtime's module cache (§4.13).
	FunRunModuleCacheSize int
	// FunRunModuleMaxConcurrency bounds concurrent module loads in flight.
	FunRunModuleMaxConcurrency int

	// HTTPServerTCPBacklog is read by the (external) HTTP surface; kept
	// here because it is process-wide and enumerated in §6.
	HTTPServerTCPBacklog int

	// ConvexTraceFile-equivalent diagnostic trace destination; empty disables it.
	TraceFile string

	LogFormat LogFormat

	// MaxOCCRetriesBeforeReporting mirrors UDFExecutorOCCMaxRetries for
	// non-UDF workers (index workers, scheduler).
	MaxOCCRetriesBeforeReporting int

	// RetentionScanInterval controls how often the retention manager (C3)
	// sweeps for garbage.
	RetentionScanInterval time.Duration

	// WriteLogCapacity bounds the in-memory write log ring buffer (C6).
	WriteLogCapacity int

	// TextIndexFlushInterval / VectorIndexFlushInterval control how often
	// the flush worker (C12) seals the memory overlay into a new segment.
	TextIndexFlushInterval   time.Duration
	VectorIndexFlushInterval time.Duration

	// TextIndexBackfillBatchSize is the "S" from §4.10: documents per
	// partial segment emitted during backfill.
	TextIndexBackfillBatchSize int

	// FastForwardIdleWindow is how long an index must see no writes
	// before the fast-forward worker bumps its snapshot ts (§4.12).
	FastForwardIdleWindow time.Duration
}

// Default returns the configuration used when the caller does not override
// anything, with values chosen to match the orders of magnitude in spec.md.
func Default() Config {
	return Config{
		MaxOCCFailures:                   3,
		TransactionMaxUserWriteSizeBytes: 16 << 20,
		MaxBytesWrittenPerSecond:         8 << 20,
		WriteThroughputWindow:            time.Second,
		IndexWorkersInitialBackoff:       time.Second,
		IndexWorkersMaxBackoff:           60 * time.Second,
		UDFExecutorOCCMaxRetries:         3,
		FunRunModuleCacheSize:            512,
		FunRunModuleMaxConcurrency:       16,
		HTTPServerTCPBacklog:             1024,
		TraceFile:                        "",
		LogFormat:                        LogFormatJSON,
		MaxOCCRetriesBeforeReporting:     3,
		RetentionScanInterval:            5 * time.Second,
		WriteLogCapacity:                 4096,
		TextIndexFlushInterval:           10 * time.Second,
		VectorIndexFlushInterval:         10 * time.Second,
		TextIndexBackfillBatchSize:       500,
		FastForwardIdleWindow:            30 * time.Second,
	}
}
