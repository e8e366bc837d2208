package text

import (
	"testing"

	"github.com/riftdb/rift/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSegmentLookupAndStats(t *testing.T) {
	docs := []DocInput{
		{ID: value.NewDocumentID(100), Tokens: []string{"fox", "jumps"}, CreationTime: 1},
		{ID: value.NewDocumentID(100), Tokens: []string{"fox", "fox", "runs"}, CreationTime: 2},
	}
	seg, err := BuildSegment(10, docs)
	require.NoError(t, err)

	assert.Equal(t, 2, seg.DocCount())
	assert.Equal(t, 2, seg.DocFreq("fox"))
	assert.Nil(t, seg.Lookup("missing"))
	assert.Equal(t, uint64(5), seg.TotalLength())

	foxPostings := seg.Lookup("fox")
	require.Len(t, foxPostings, 2)
}

func TestSegmentTombstoneExcludesFromLiveCount(t *testing.T) {
	docs := []DocInput{
		{ID: value.NewDocumentID(100), Tokens: []string{"a"}, CreationTime: 1},
		{ID: value.NewDocumentID(100), Tokens: []string{"a"}, CreationTime: 2},
	}
	seg, err := BuildSegment(10, docs)
	require.NoError(t, err)
	require.Equal(t, 2, seg.LiveDocCount())

	seg.MarkTombstoned(0)
	assert.Equal(t, 1, seg.LiveDocCount())
	assert.True(t, seg.Tombstoned(0))
	assert.False(t, seg.Tombstoned(1))
}

func TestSegmentTerms(t *testing.T) {
	docs := []DocInput{
		{ID: value.NewDocumentID(100), Tokens: []string{"alpha", "beta"}, CreationTime: 1},
	}
	seg, err := BuildSegment(10, docs)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, seg.Terms())
}
