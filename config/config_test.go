package config_test

import (
	"testing"

	"github.com/riftdb/rift/config"
	"github.com/stretchr/testify/require"
)

func TestDefaultProducesPositiveBoundsForEveryLimit(t *testing.T) {
	c := config.Default()

	require.Positive(t, c.MaxOCCFailures)
	require.Positive(t, c.TransactionMaxUserWriteSizeBytes)
	require.Positive(t, c.MaxBytesWrittenPerSecond)
	require.Positive(t, c.WriteThroughputWindow)
	require.Positive(t, c.IndexWorkersInitialBackoff)
	require.Positive(t, c.IndexWorkersMaxBackoff)
	require.Positive(t, c.WriteLogCapacity)
	require.Positive(t, c.UDFExecutorOCCMaxRetries)
	require.Positive(t, c.FunRunModuleCacheSize)
	require.Positive(t, c.FunRunModuleMaxConcurrency)
	require.Positive(t, c.HTTPServerTCPBacklog)
	require.Positive(t, c.MaxOCCRetriesBeforeReporting)
	require.Positive(t, c.RetentionScanInterval)
	require.Positive(t, c.TextIndexFlushInterval)
	require.Positive(t, c.VectorIndexFlushInterval)
	require.Positive(t, c.TextIndexBackfillBatchSize)
	require.Positive(t, c.FastForwardIdleWindow)
	require.Equal(t, config.LogFormatJSON, c.LogFormat)
}

func TestDefaultBackoffCeilingExceedsFloor(t *testing.T) {
	c := config.Default()
	require.Greater(t, c.IndexWorkersMaxBackoff, c.IndexWorkersInitialBackoff)
}

func TestCallersCanOverrideIndividualFields(t *testing.T) {
	c := config.Default()
	c.MaxOCCFailures = 10
	require.Equal(t, 10, c.MaxOCCFailures)
	require.Equal(t, config.Default().WriteLogCapacity, c.WriteLogCapacity)
}
