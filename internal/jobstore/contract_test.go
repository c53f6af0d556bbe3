package jobstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/fanout"
	"github.com/cuongbtq/lecturecast/internal/usage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob() *domain.Job {
	persona, _ := domain.BuiltInPersona(domain.DefaultPersonaID)
	id := uuid.NewString()
	return &domain.Job{
		ID:     id,
		Status: domain.JobStatusUploaded,
		Source: domain.Source{
			Filename:  "lecture.pdf",
			SizeBytes: 2048,
			PageCount: 4,
			Location:  "uploads/" + id + "/original.pdf",
		},
		Persona: persona,
	}
}

func threeSections(t *testing.T) []domain.Section {
	t.Helper()
	sections, err := fanout.Materialize(&domain.Outline{Sections: []domain.SectionOutline{
		{Title: "One"}, {Title: "Two"}, {Title: "Three"},
	}})
	require.NoError(t, err)
	return sections
}

// analyzed creates a job that has passed analysis with three sections
func analyzed(t *testing.T, ctx context.Context, store Store) *domain.Job {
	t.Helper()
	job := newTestJob()
	require.NoError(t, store.Create(ctx, job))

	ok, err := store.Transition(ctx, job.ID, domain.JobStatusUploaded, domain.JobStatusAnalyzing)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := store.Commit(ctx, Commit{
		JobID:     job.ID,
		Stage:     domain.StageAnalyze,
		Locations: []string{"uploads/" + job.ID + "/analysis.json"},
		Sections:  threeSections(t),
		Charges: []usage.Charge{
			{Category: usage.CategoryLLMInputTokens, Quantity: 1000, AmountUSD: 0.0005},
		},
	})
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.True(t, res.Advanced)
	return job
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		job := newTestJob()
		require.NoError(t, store.Create(ctx, job))

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusUploaded, got.Status)
		assert.Equal(t, "lecture.pdf", got.Source.Filename)
		assert.Equal(t, 4, got.Source.PageCount)
		assert.Equal(t, domain.DefaultPersonaID, got.Persona.ID)
		assert.Empty(t, got.Sections)
		assert.Zero(t, got.Ledger.Total())

		_, err = store.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})

	t.Run("transition is compare and set", func(t *testing.T) {
		store := newStore(t)
		job := newTestJob()
		require.NoError(t, store.Create(ctx, job))

		ok, err := store.Transition(ctx, job.ID, domain.JobStatusUploaded, domain.JobStatusAnalyzing)
		require.NoError(t, err)
		assert.True(t, ok)

		// duplicate delivery sees the job already moved
		ok, err = store.Transition(ctx, job.ID, domain.JobStatusUploaded, domain.JobStatusAnalyzing)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = store.Transition(ctx, job.ID, domain.JobStatusAnalyzing, domain.JobStatusCompleted)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("analyze commit populates sections once", func(t *testing.T) {
		store := newStore(t)
		job := analyzed(t, ctx, store)

		again, err := store.Commit(ctx, Commit{
			JobID:    job.ID,
			Stage:    domain.StageAnalyze,
			Sections: threeSections(t)[:1],
			Charges:  []usage.Charge{{Category: usage.CategoryLLMInputTokens, Quantity: 1000, AmountUSD: 0.0005}},
		})
		require.NoError(t, err)
		assert.False(t, again.Applied)
		assert.False(t, again.Advanced)

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusAnalyzed, got.Status)
		require.Len(t, got.Sections, 3)
		assert.Equal(t, "s02", got.Sections[1].ID)
		assert.InDelta(t, 0.0005, got.Ledger.Total(), 1e-12)
		assert.Equal(t, float64(1000), got.Ledger[usage.CategoryLLMInputTokens].Quantity)
	})

	t.Run("section fan-out advances on the last section only", func(t *testing.T) {
		store := newStore(t)
		job := analyzed(t, ctx, store)

		ok, err := store.Transition(ctx, job.ID, domain.JobStatusAnalyzed, domain.JobStatusGeneratingScript)
		require.NoError(t, err)
		require.True(t, ok)

		for i, id := range []string{"s01", "s02"} {
			res, err := store.Commit(ctx, Commit{JobID: job.ID, Stage: domain.StageScript, SectionID: id, Locations: []string{id}})
			require.NoError(t, err)
			assert.True(t, res.Applied)
			assert.False(t, res.Advanced)
			assert.Equal(t, 2-i, res.Remaining)
		}

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusGeneratingScript, got.Status)

		res, err := store.Commit(ctx, Commit{JobID: job.ID, Stage: domain.StageScript, SectionID: "s03", Locations: []string{"s03"}})
		require.NoError(t, err)
		assert.True(t, res.Advanced)
		assert.Zero(t, res.Remaining)

		got, err = store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusScriptGenerated, got.Status)
		for _, s := range got.Sections {
			assert.True(t, s.ScriptDone)
			assert.False(t, s.AudioDone)
		}
	})

	t.Run("duplicate commit is not charged twice", func(t *testing.T) {
		store := newStore(t)
		job := analyzed(t, ctx, store)
		_, err := store.Transition(ctx, job.ID, domain.JobStatusAnalyzed, domain.JobStatusGeneratingScript)
		require.NoError(t, err)

		commit := Commit{
			JobID:     job.ID,
			Stage:     domain.StageScript,
			SectionID: "s01",
			Locations: []string{"first"},
			Charges:   []usage.Charge{{Category: usage.CategoryLLMOutputTokens, Quantity: 100, AmountUSD: 0.0003}},
		}
		first, err := store.Commit(ctx, commit)
		require.NoError(t, err)
		assert.True(t, first.Applied)

		commit.Locations = []string{"second"}
		second, err := store.Commit(ctx, commit)
		require.NoError(t, err)
		assert.False(t, second.Applied)

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		out, ok := got.Output(domain.StageScript, "s01")
		require.True(t, ok)
		assert.Equal(t, []string{"first"}, out.Locations)
		assert.Equal(t, float64(100), got.Ledger[usage.CategoryLLMOutputTokens].Quantity)
	})

	t.Run("unknown section is rejected", func(t *testing.T) {
		store := newStore(t)
		job := analyzed(t, ctx, store)

		_, err := store.Commit(ctx, Commit{JobID: job.ID, Stage: domain.StageScript, SectionID: "s09"})
		assert.ErrorIs(t, err, domain.ErrUnknownSection)
	})

	t.Run("reconcile advances a complete stage", func(t *testing.T) {
		store := newStore(t)
		job := newTestJob()
		require.NoError(t, store.Create(ctx, job))

		// output committed while the job was still uploaded, so nothing advanced
		res, err := store.Commit(ctx, Commit{JobID: job.ID, Stage: domain.StageAnalyze, Sections: threeSections(t)})
		require.NoError(t, err)
		assert.False(t, res.Advanced)

		advanced, err := store.Reconcile(ctx, job.ID, domain.StageAnalyze)
		require.NoError(t, err)
		assert.False(t, advanced)

		_, err = store.Transition(ctx, job.ID, domain.JobStatusUploaded, domain.JobStatusAnalyzing)
		require.NoError(t, err)

		advanced, err = store.Reconcile(ctx, job.ID, domain.StageAnalyze)
		require.NoError(t, err)
		assert.True(t, advanced)

		advanced, err = store.Reconcile(ctx, job.ID, domain.StageAnalyze)
		require.NoError(t, err)
		assert.False(t, advanced)
	})

	t.Run("record attempt counts per triple", func(t *testing.T) {
		store := newStore(t)
		job := newTestJob()
		require.NoError(t, store.Create(ctx, job))

		n, err := store.RecordAttempt(ctx, job.ID, domain.StageSynthesize, "s01", "timeout")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = store.RecordAttempt(ctx, job.ID, domain.StageSynthesize, "s01", "timeout")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		n, err = store.RecordAttempt(ctx, job.ID, domain.StageSynthesize, "s02", "timeout")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = store.RecordAttempt(ctx, uuid.NewString(), domain.StageAnalyze, "", "x")
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})

	t.Run("hand-off is claimed once until released", func(t *testing.T) {
		store := newStore(t)
		job := newTestJob()
		require.NoError(t, store.Create(ctx, job))

		claimed, err := store.ClaimHandoff(ctx, job.ID, domain.StageScript)
		require.NoError(t, err)
		assert.True(t, claimed)
		claimed, err = store.ClaimHandoff(ctx, job.ID, domain.StageScript)
		require.NoError(t, err)
		assert.False(t, claimed)

		// stages are independent
		claimed, err = store.ClaimHandoff(ctx, job.ID, domain.StageAnalyze)
		require.NoError(t, err)
		assert.True(t, claimed)

		require.NoError(t, store.ReleaseHandoff(ctx, job.ID, domain.StageScript))
		claimed, err = store.ClaimHandoff(ctx, job.ID, domain.StageScript)
		require.NoError(t, err)
		assert.True(t, claimed)

		_, err = store.ClaimHandoff(ctx, uuid.NewString(), domain.StageScript)
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})

	t.Run("fail is terminal and keeps sibling outputs", func(t *testing.T) {
		store := newStore(t)
		job := analyzed(t, ctx, store)
		_, err := store.Transition(ctx, job.ID, domain.JobStatusAnalyzed, domain.JobStatusGeneratingScript)
		require.NoError(t, err)
		_, err = store.Commit(ctx, Commit{JobID: job.ID, Stage: domain.StageScript, SectionID: "s01", Locations: []string{"s01"}})
		require.NoError(t, err)

		ok, err := store.Fail(ctx, job.ID, domain.Failure{
			Stage:      domain.StageScript,
			SectionID:  "s02",
			Class:      domain.FailureClassExternal,
			Message:    "model unavailable",
			RetryCount: 3,
		})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Fail(ctx, job.ID, domain.Failure{Stage: domain.StageScript, Message: "again"})
		require.NoError(t, err)
		assert.False(t, ok)

		// a late sibling still lands but cannot move the job
		res, err := store.Commit(ctx, Commit{JobID: job.ID, Stage: domain.StageScript, SectionID: "s03", Locations: []string{"s03"},
			Charges: []usage.Charge{{Category: usage.CategoryLLMOutputTokens, Quantity: 10, AmountUSD: 0.00003}}})
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.False(t, res.Advanced)

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, got.Status)
		assert.Equal(t, domain.JobStatusGeneratingScript, got.FailedFrom)
		require.NotNil(t, got.Failure)
		assert.Equal(t, domain.StageScript, got.Failure.Stage)
		assert.Equal(t, "s02", got.Failure.SectionID)
		assert.Equal(t, "model unavailable", got.Failure.Message)
		assert.Equal(t, 3, got.Failure.RetryCount)
		_, ok = got.Output(domain.StageScript, "s01")
		assert.True(t, ok)
		assert.Equal(t, float64(10), got.Ledger[usage.CategoryLLMOutputTokens].Quantity)

		_, err = store.Transition(ctx, job.ID, domain.JobStatusFailed, domain.JobStatusAnalyzing)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("concurrent section completions", func(t *testing.T) {
		store := newStore(t)
		job := newTestJob()
		require.NoError(t, store.Create(ctx, job))
		_, err := store.Transition(ctx, job.ID, domain.JobStatusUploaded, domain.JobStatusAnalyzing)
		require.NoError(t, err)

		const n = 12
		outline := &domain.Outline{}
		for i := 0; i < n; i++ {
			outline.Sections = append(outline.Sections, domain.SectionOutline{Title: fmt.Sprintf("Part %d", i)})
		}
		sections, err := fanout.Materialize(outline)
		require.NoError(t, err)
		_, err = store.Commit(ctx, Commit{JobID: job.ID, Stage: domain.StageAnalyze, Sections: sections})
		require.NoError(t, err)
		_, err = store.Transition(ctx, job.ID, domain.JobStatusAnalyzed, domain.JobStatusGeneratingScript)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var mu sync.Mutex
		advancedCount := 0
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				res, err := store.Commit(ctx, Commit{
					JobID:     job.ID,
					Stage:     domain.StageScript,
					SectionID: id,
					Locations: []string{id},
					Charges:   []usage.Charge{{Category: usage.CategoryLLMOutputTokens, Quantity: 1, AmountUSD: 0.5}},
				})
				assert.NoError(t, err)
				if res.Advanced {
					mu.Lock()
					advancedCount++
					mu.Unlock()
				}
			}(fanout.SectionID(i))
		}
		wg.Wait()

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, advancedCount)
		assert.Equal(t, domain.JobStatusScriptGenerated, got.Status)
		assert.True(t, fanout.Complete(got.Sections, domain.StageScript))
		assert.Equal(t, float64(n), got.Ledger[usage.CategoryLLMOutputTokens].Quantity)
		assert.InDelta(t, float64(n)*0.5, got.Ledger.Total(), 1e-9)
	})

	t.Run("list paginates newest first", func(t *testing.T) {
		store := newStore(t)
		// far enough ahead that rows left by other tests sort after these
		base := time.Now().AddDate(10, 0, 0).Truncate(time.Millisecond)
		var ids []string
		for i := 0; i < 5; i++ {
			job := newTestJob()
			job.CreatedAt = base.Add(time.Duration(i) * time.Second)
			require.NoError(t, store.Create(ctx, job))
			ids = append(ids, job.ID)
		}

		page, err := store.List(ctx, Filter{Status: domain.JobStatusUploaded, PageSize: 2})
		require.NoError(t, err)
		require.Len(t, page, 3)
		assert.Equal(t, ids[4], page[0].ID)
		assert.Equal(t, ids[3], page[1].ID)

		next, err := store.List(ctx, Filter{
			Status:   domain.JobStatusUploaded,
			PageSize: 2,
			Cursor:   &Cursor{CreatedAt: page[1].CreatedAt, JobID: page[1].ID},
		})
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(next), 2)
		assert.Equal(t, ids[2], next[0].ID)

		none, err := store.List(ctx, Filter{Status: domain.JobStatusCompleted, PageSize: 10})
		require.NoError(t, err)
		for _, j := range none {
			assert.NotContains(t, ids, j.ID)
		}
	})
}

func runPersonaContract(t *testing.T, store PersonaStore) {
	ctx := context.Background()

	p, _ := domain.BuiltInPersona("dr-straightforward-001")
	p.ID = "contract-" + uuid.NewString()[:8]
	p.BuiltIn = false

	_, err := store.GetPersona(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrPersonaNotFound)

	require.NoError(t, store.PutPersona(ctx, p))
	got, err := store.GetPersona(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.Voice, got.Voice)

	p.Name = "Renamed"
	require.NoError(t, store.PutPersona(ctx, p))
	list, err := store.ListPersonas(ctx)
	require.NoError(t, err)
	found := false
	for _, item := range list {
		if item.ID == p.ID {
			found = true
			assert.Equal(t, "Renamed", item.Name)
		}
	}
	assert.True(t, found)

	require.NoError(t, store.DeletePersona(ctx, p.ID))
	assert.ErrorIs(t, store.DeletePersona(ctx, p.ID), domain.ErrPersonaNotFound)
}
