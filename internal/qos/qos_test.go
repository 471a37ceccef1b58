package qos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebula-dds/ddscore/internal/dderr"
)

func TestDefaultIsConsistent(t *testing.T) {
	require.NoError(t, CheckConsistency(Default()))
}

func TestKeepLastRequiresDepth(t *testing.T) {
	q := Default()
	q.HistoryKind = KeepLast
	q.HistoryDepth = 0
	err := CheckConsistency(q)
	require.Error(t, err)
	assert.True(t, dderr.Is(err, dderr.InconsistentPolicy))
}

func TestMaxSamplesPerInstanceBoundByDepth(t *testing.T) {
	q := Default()
	q.HistoryKind = KeepLast
	q.HistoryDepth = 2
	q.ResourceLimitsMaxSamplesPerInstance = 5
	err := CheckConsistency(q)
	require.Error(t, err)
	assert.True(t, dderr.Is(err, dderr.InconsistentPolicy))
}

func TestMergePreservesUnsetPolicies(t *testing.T) {
	base := Default()
	base.Partitions = []string{"telemetry.*"}
	base.Present |= Partition

	patch := QoS{Present: Deadline, DeadlinePeriodNs: 1000}
	merged := Merge(base, patch)

	assert.Equal(t, []string{"telemetry.*"}, merged.Partitions)
	assert.Equal(t, int64(1000), merged.DeadlinePeriodNs)
}

func TestCheckMutableRejectsImmutableChangeOnEnabledEntity(t *testing.T) {
	current := Default()
	next := current
	next.ReliabilityKind = Reliable

	err := CheckMutable(true, current, next)
	require.Error(t, err)
	assert.True(t, dderr.Is(err, dderr.ImmutablePolicy))

	// Same change is fine before enable.
	require.NoError(t, CheckMutable(false, current, next))
}

func TestCheckMutableAllowsMutablePolicyChange(t *testing.T) {
	current := Default()
	next := current
	next.DeadlinePeriodNs = 42
	require.NoError(t, CheckMutable(true, current, next))
}

// S3 — reliability mismatch.
func TestMatchReliabilityMismatch(t *testing.T) {
	reader := Default()
	reader.ReliabilityKind = Reliable
	writer := Default()
	writer.ReliabilityKind = BestEffort

	ok, failed := Match(reader, writer)
	assert.False(t, ok)
	assert.Equal(t, Reliability, failed)
}

func TestMatchSucceedsWhenReaderLessStrict(t *testing.T) {
	reader := Default() // BestEffort
	writer := Default()
	writer.ReliabilityKind = Reliable

	ok, _ := Match(reader, writer)
	assert.True(t, ok)
}

func TestMatchDeadlineRule(t *testing.T) {
	reader := Default()
	reader.DeadlinePeriodNs = 1000
	writer := Default()
	writer.DeadlinePeriodNs = 2000 // writer offers slower than reader requires

	ok, failed := Match(reader, writer)
	assert.False(t, ok)
	assert.Equal(t, Deadline, failed)
}

// S6 — partition overlap.
func TestPartitionWildcardOverlap(t *testing.T) {
	assert.True(t, PartitionsOverlap([]string{"telemetry.*"}, []string{"telemetry.cpu"}))
	assert.False(t, PartitionsOverlap([]string{"control.*"}, []string{"telemetry.cpu"}))
}

func TestPartitionLiteralSetsRequireSharedMember(t *testing.T) {
	assert.True(t, PartitionsOverlap([]string{"a", "b"}, []string{"b", "c"}))
	assert.False(t, PartitionsOverlap([]string{"a"}, []string{"b"}))
}

func TestPartitionEmptyListsMatchEachOther(t *testing.T) {
	assert.True(t, PartitionsOverlap(nil, nil))
}

func TestMatchMonotonicStricterReaderCannotFixMismatch(t *testing.T) {
	writer := Default()
	writer.ReliabilityKind = BestEffort
	loose := Default()
	loose.ReliabilityKind = BestEffort
	strict := Default()
	strict.ReliabilityKind = Reliable

	okLoose, _ := Match(loose, writer)
	okStrict, _ := Match(strict, writer)
	assert.True(t, okLoose)
	assert.False(t, okStrict)
}
