package workflow

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/laboro/internal/models"
)

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore(5)

	record, err := store.Create("job_1", map[string]interface{}{"platform": "shufti"})
	require.NoError(t, err)
	assert.Equal(t, models.StageIdle, record.Stage)
	assert.Equal(t, "shufti", record.Payload["platform"])

	got, err := store.Get("job_1")
	require.NoError(t, err)
	assert.Equal(t, "job_1", got.ID)
}

func TestStore_DuplicateJob(t *testing.T) {
	store := NewStore(5)

	_, err := store.Create("job_1", nil)
	require.NoError(t, err)

	_, err = store.Create("job_1", nil)
	assert.ErrorIs(t, err, ErrDuplicateJob)
}

func TestStore_CapacityLimit(t *testing.T) {
	store := NewStore(3)

	for i := 0; i < 3; i++ {
		_, err := store.Create(fmt.Sprintf("job_%d", i), nil)
		require.NoError(t, err)
	}

	_, err := store.Create("job_overflow", nil)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 3, store.Len())
}

func TestStore_GetUnknownJob(t *testing.T) {
	store := NewStore(5)

	_, err := store.Get("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStore_MutateStageCommitsAndAppendsHistory(t *testing.T) {
	store := NewStore(5)
	_, err := store.Create("job_1", nil)
	require.NoError(t, err)

	updated, err := store.MutateStage("job_1", models.StageIdle, models.StageSearching, map[string]interface{}{
		"search_query": "data entry",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StageSearching, updated.Stage)
	assert.Equal(t, "data entry", updated.Payload["search_query"])

	require.Len(t, updated.History, 1)
	assert.Equal(t, models.StageIdle, updated.History[0].From)
	assert.Equal(t, models.StageSearching, updated.History[0].To)
	assert.Equal(t, []string{"search_query"}, updated.History[0].PayloadKeys)
}

func TestStore_MutateStageRejectsStaleExpectation(t *testing.T) {
	store := NewStore(5)
	_, err := store.Create("job_1", nil)
	require.NoError(t, err)

	_, err = store.MutateStage("job_1", models.StageIdle, models.StageSearching, nil)
	require.NoError(t, err)

	// The job already moved; a commit predicated on Idle must fail
	// without touching the record.
	_, err = store.MutateStage("job_1", models.StageIdle, models.StageSearching, nil)
	assert.ErrorIs(t, err, ErrJobBusy)

	got, err := store.Get("job_1")
	require.NoError(t, err)
	assert.Equal(t, models.StageSearching, got.Stage)
	assert.Len(t, got.History, 1)
}

func TestStore_MutateStageNilPatchValueDeletesKey(t *testing.T) {
	store := NewStore(5)
	_, err := store.Create("job_1", map[string]interface{}{"pending_message": "質問があります"})
	require.NoError(t, err)

	updated, err := store.MutateStage("job_1", models.StageIdle, models.StageSearching, map[string]interface{}{
		"pending_message": nil,
		"search_query":    "data entry",
	})
	require.NoError(t, err)

	_, present := updated.Payload["pending_message"]
	assert.False(t, present, "a nil patch value removes the key")
	assert.Equal(t, "data entry", updated.Payload["search_query"])
}

func TestStore_ConcurrentMutationsOneWins(t *testing.T) {
	store := NewStore(5)
	_, err := store.Create("job_1", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	targets := []models.Stage{models.StageSearching, models.StageCancelled}

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = store.MutateStage("job_1", models.StageIdle, targets[i], nil)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent commit should win")

	got, err := store.Get("job_1")
	require.NoError(t, err)
	assert.Len(t, got.History, 1)
}

func TestStore_ClonesDoNotAliasInternals(t *testing.T) {
	store := NewStore(5)
	_, err := store.Create("job_1", map[string]interface{}{"key": "original"})
	require.NoError(t, err)

	got, err := store.Get("job_1")
	require.NoError(t, err)
	got.Payload["key"] = "mutated"
	got.Stage = models.StageFailed

	fresh, err := store.Get("job_1")
	require.NoError(t, err)
	assert.Equal(t, "original", fresh.Payload["key"])
	assert.Equal(t, models.StageIdle, fresh.Stage)
}

func TestStore_MarkErrorAccumulates(t *testing.T) {
	store := NewStore(5)
	_, err := store.Create("job_1", nil)
	require.NoError(t, err)

	record, err := store.MarkError("job_1", "scrape failed")
	require.NoError(t, err)
	assert.Equal(t, 1, record.ErrorCount)
	assert.Equal(t, "scrape failed", record.LastError)

	record, err = store.MarkError("job_1", "scrape failed again")
	require.NoError(t, err)
	assert.Equal(t, 2, record.ErrorCount)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	store := NewStore(5)
	_, err := store.Create("job_1", nil)
	require.NoError(t, err)

	store.Delete("job_1")
	store.Delete("job_1")
	assert.Equal(t, 0, store.Len())

	// Capacity is freed by deletion.
	_, err = store.Create("job_2", nil)
	assert.NoError(t, err)
}
