package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medmap-diagnosis-server/internal/domain"
)

func TestCorpusIndex_BuildsOnce(t *testing.T) {
	logger, _ := testLogger()
	store := newMemStore(fluCold()...)
	index := NewCorpusIndex(store, 0, logger)

	first, err := index.Snapshot(context.Background())
	require.NoError(t, err)
	second, err := index.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, store.listCalls)
	assert.Equal(t, 2, first.Model.Len())
	assert.Len(t, first.Version, 16)
}

func TestCorpusIndex_ConcurrentReadersShareOneBuild(t *testing.T) {
	logger, _ := testLogger()
	store := newMemStore(fluCold()...)
	index := NewCorpusIndex(store, 0, logger)

	var wg sync.WaitGroup
	snaps := make([]*CorpusSnapshot, 16)
	for i := range snaps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := index.Snapshot(context.Background())
			assert.NoError(t, err)
			snaps[i] = snap
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.listCalls)
	for _, s := range snaps {
		assert.Same(t, snaps[0], s)
	}
}

func TestCorpusIndex_Invalidate(t *testing.T) {
	logger, _ := testLogger()
	store := newMemStore(fluCold()...)
	index := NewCorpusIndex(store, 0, logger)
	ctx := context.Background()

	before, err := index.Snapshot(ctx)
	require.NoError(t, err)

	_, err = store.UpsertDiseases(ctx, []domain.DiseaseDocument{{Name: "Malaria", SymptomText: "fever chills sweating"}})
	require.NoError(t, err)
	index.Invalidate()

	after, err := index.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before.Version, after.Version)
	assert.Equal(t, 3, after.Model.Len())
	assert.Equal(t, 2, before.Model.Len(), "old snapshot must stay intact")
}

func TestCorpusIndex_RefreshByAge(t *testing.T) {
	logger, _ := testLogger()
	store := newMemStore(fluCold()...)
	index := NewCorpusIndex(store, time.Minute, logger)
	now := fixedNow
	index.now = func() time.Time { return now }

	_, err := index.Snapshot(context.Background())
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	_, err = index.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.listCalls)

	now = now.Add(time.Minute)
	_, err = index.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls)
}

func TestCorpusIndex_EmptyCorpus(t *testing.T) {
	logger, _ := testLogger()
	index := NewCorpusIndex(newMemStore(), 0, logger)

	_, err := index.Snapshot(context.Background())
	var noCorpus *domain.NoCorpusError
	require.ErrorAs(t, err, &noCorpus)
	assert.Equal(t, "corpus is empty", noCorpus.Reason)
}

func TestCorpusIndex_StoreFailure(t *testing.T) {
	logger, hook := testLogger()
	store := newMemStore(fluCold()...)
	index := NewCorpusIndex(store, 0, logger)
	ctx := context.Background()

	t.Run("no previous snapshot", func(t *testing.T) {
		store.listErr = errors.New("connection refused")
		defer func() { store.listErr = nil }()

		_, err := index.Snapshot(ctx)
		var noCorpus *domain.NoCorpusError
		require.ErrorAs(t, err, &noCorpus)
	})

	t.Run("previous snapshot is served", func(t *testing.T) {
		good, err := index.Snapshot(ctx)
		require.NoError(t, err)

		store.listErr = errors.New("connection refused")
		defer func() { store.listErr = nil }()
		index.Invalidate()

		got, err := index.Snapshot(ctx)
		require.NoError(t, err)
		assert.Same(t, good, got)
		assert.Equal(t, "Corpus refresh failed, serving previous snapshot", hook.LastEntry().Message)
	})

	t.Run("cancellation is returned as is", func(t *testing.T) {
		store.listErr = context.Canceled
		defer func() { store.listErr = nil }()
		index.Invalidate()

		_, err := index.Snapshot(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
