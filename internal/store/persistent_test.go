package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lerian-vectorstore/pkg/vectorstore"
)

func newConnectedPersistentStore(t *testing.T, dimension int) *PersistentStore {
	t.Helper()
	s := NewPersistentStore(t.TempDir(), "notes", dimension, vectorstore.DistanceCosine)
	require.NoError(t, s.Connect(context.Background()))
	return s
}

func TestPersistentStoreInsertSurvivesReconnect(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := NewPersistentStore(dir, "notes", 3, vectorstore.DistanceCosine)
	require.NoError(t, first.Connect(ctx))
	require.NoError(t, first.Insert(ctx, []vectorstore.Vector{{1, 0, 0}}, []int64{1}, []vectorstore.Payload{{"name": "a"}}))
	require.NoError(t, first.Disconnect(ctx))

	second := NewPersistentStore(dir, "notes", 3, vectorstore.DistanceCosine)
	require.NoError(t, second.Connect(ctx))

	got, err := second.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.Payload["name"])
}

func TestPersistentStoreSearchRebuildsIndexOnConnect(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := NewPersistentStore(dir, "notes", 2, vectorstore.DistanceCosine)
	require.NoError(t, first.Connect(ctx))
	require.NoError(t, first.Insert(ctx, []vectorstore.Vector{{1, 0}, {0, 1}}, []int64{1, 2}, []vectorstore.Payload{{}, {}}))

	second := NewPersistentStore(dir, "notes", 2, vectorstore.DistanceCosine)
	require.NoError(t, second.Connect(ctx))

	results, err := second.Search(ctx, vectorstore.Vector{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].ID)
}

func TestPersistentStoreDeleteTombstonesAndJournalsRemoval(t *testing.T) {
	s := newConnectedPersistentStore(t, 2)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, []vectorstore.Vector{{1, 0}}, []int64{1}, []vectorstore.Payload{{}}))

	require.NoError(t, s.Delete(ctx, 1))
	require.NoError(t, s.Delete(ctx, 1)) // idempotent

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	results, err := s.Search(ctx, vectorstore.Vector{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPersistentStoreSearchCapsAtPopulationWhenLimitExceedsIt(t *testing.T) {
	s := newConnectedPersistentStore(t, 2)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, []vectorstore.Vector{{1, 0}}, []int64{1}, []vectorstore.Payload{{}}))

	results, err := s.Search(ctx, vectorstore.Vector{1, 0}, 50, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestPersistentStoreSearchAppliesFilterOverFetching(t *testing.T) {
	s := newConnectedPersistentStore(t, 2)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx,
		[]vectorstore.Vector{{1, 0}, {1, 0}, {1, 0}},
		[]int64{1, 2, 3},
		[]vectorstore.Payload{{"keep": false}, {"keep": true}, {"keep": false}}))

	results, err := s.Search(ctx, vectorstore.Vector{1, 0}, 1, vectorstore.Filter{"keep": vectorstore.Eq(true)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].ID)
}

func TestPersistentStoreUpdateUpsertsAndRewritesIndex(t *testing.T) {
	s := newConnectedPersistentStore(t, 2)
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, 1, vectorstore.Vector{1, 0}, vectorstore.Payload{"v": 1.0}))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Payload["v"])
}

func TestPersistentStoreDeleteCollectionRemovesJournalAndResetsIndex(t *testing.T) {
	s := newConnectedPersistentStore(t, 2)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, []vectorstore.Vector{{1, 0}}, []int64{1}, []vectorstore.Payload{{}}))

	require.NoError(t, s.DeleteCollection(ctx))

	results, total, err := s.List(ctx, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, total)
}

func TestPersistentStoreInsertLeavesStateUnchangedOnJournalFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not block writes for root")
	}
	dir := t.TempDir()
	ctx := context.Background()
	s := NewPersistentStore(dir, "notes", 2, vectorstore.DistanceCosine)
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Insert(ctx, []vectorstore.Vector{{1, 0}}, []int64{1}, []vectorstore.Payload{{"v": 1.0}}))

	require.NoError(t, os.Chmod(dir, 0o555))
	defer os.Chmod(dir, 0o755)

	err := s.Insert(ctx, []vectorstore.Vector{{0, 1}}, []int64{2}, []vectorstore.Payload{{"v": 2.0}})
	require.Error(t, err)

	got, err := s.Get(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, got, "a failed journal write must not leave the rejected record visible")

	results, total, err := s.List(ctx, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, results, 1)
}

func TestPersistentStoreDeleteLeavesStateUnchangedOnJournalFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not block writes for root")
	}
	dir := t.TempDir()
	ctx := context.Background()
	s := NewPersistentStore(dir, "notes", 2, vectorstore.DistanceCosine)
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Insert(ctx, []vectorstore.Vector{{1, 0}}, []int64{1}, []vectorstore.Payload{{}}))

	require.NoError(t, os.Chmod(dir, 0o555))
	defer os.Chmod(dir, 0o755)

	err := s.Delete(ctx, 1)
	require.Error(t, err)

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got, "a failed journal write must not delete the record from memory")
}

func TestPersistentStoreOperationsBeforeConnectReturnNotConnected(t *testing.T) {
	s := NewPersistentStore(t.TempDir(), "notes", 2, vectorstore.DistanceCosine)
	_, err := s.Get(context.Background(), 1)
	assert.True(t, vectorstore.IsNotConnected(err))
}
