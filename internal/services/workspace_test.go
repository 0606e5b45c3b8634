package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizgenius/internal/models"
)

func sampleQuestions() []models.Question {
	return []models.Question{
		{Question: "Capital of France?", Options: []string{"A) Paris", "B) Rome", "C) Oslo", "D) Bern"}, Correct: "A", Type: models.QuestionMCQ},
		{Question: "The sky is green.", Options: []string{"A) True", "B) False"}, Correct: "B", Type: models.QuestionTrueFalse},
	}
}

func TestWorkspaceStore_CreateGetUpdate(t *testing.T) {
	t.Parallel()

	store := NewWorkspaceStore()
	ws := store.Create(&models.User{ID: 7, Username: "ada", DisplayName: "Ada"}, false)
	require.NotEmpty(t, ws.ID)
	assert.Equal(t, int64(7), ws.UserID)
	assert.Nil(t, ws.Progress)
	assert.Equal(t, models.QuestionMCQ, ws.QuestionType)

	updated, err := store.Update(ws.ID, func(w *Workspace) error {
		w.APIKey = "gsk_x"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "gsk_x", updated.APIKey)

	got, ok := store.Get(ws.ID)
	require.True(t, ok)
	assert.Equal(t, "gsk_x", got.APIKey)

	_, err = store.Update("missing", func(*Workspace) error { return nil })
	assert.ErrorIs(t, err, ErrWorkspaceNotFound)
}

func TestWorkspaceStore_FailedUpdateLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	store := NewWorkspaceStore()
	ws := store.Create(nil, true)

	_, err := store.Update(ws.ID, func(w *Workspace) error {
		w.APIKey = "changed"
		return errors.New("boom")
	})
	require.Error(t, err)

	got, _ := store.Get(ws.ID)
	assert.Empty(t, got.APIKey)
	assert.NotNil(t, got.Progress)
}

func TestWorkspaceStore_ReadsAreCopies(t *testing.T) {
	t.Parallel()

	store := NewWorkspaceStore()
	ws := store.Create(nil, true)
	_, err := store.Update(ws.ID, func(w *Workspace) error {
		w.Questions = sampleQuestions()
		return nil
	})
	require.NoError(t, err)

	got, _ := store.Get(ws.ID)
	got.Questions[0].Question = "mutated"
	got.Questions[0].Options[0] = "Z) mutated"

	again, _ := store.Get(ws.ID)
	assert.Equal(t, "Capital of France?", again.Questions[0].Question)
	assert.Equal(t, "A) Paris", again.Questions[0].Options[0])
}

func TestWorkspaceStore_ConcurrentUpdates(t *testing.T) {
	t.Parallel()

	store := NewWorkspaceStore()
	ws := store.Create(nil, true)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(ws.ID, func(w *Workspace) error {
				w.FlashcardIndex++
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := store.Get(ws.ID)
	assert.Equal(t, 50, got.FlashcardIndex)
}

func TestWorkspaceStore_Prune(t *testing.T) {
	t.Parallel()

	store := NewWorkspaceStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	old := store.Create(nil, true)

	store.now = func() time.Time { return base.Add(2 * time.Hour) }
	fresh := store.Create(nil, true)

	assert.Equal(t, 1, store.Prune(time.Hour))
	_, ok := store.Get(old.ID)
	assert.False(t, ok)
	_, ok = store.Get(fresh.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, store.Len())
}

func TestWorkspace_DocumentLifecycle(t *testing.T) {
	t.Parallel()

	ws := &Workspace{}
	ws.SetDocument(&models.Document{Name: "a.pdf", Hash: "h1"})
	ws.SetStudySet(&StudySet{Questions: sampleQuestions(), Chunks: []string{"c"}}, "h1")
	assert.False(t, ws.Stale())

	ws.Document.Hash = "h2"
	assert.True(t, ws.Stale())

	ws.SetDocument(&models.Document{Name: "b.pdf", Hash: "h3"})
	assert.Empty(t, ws.Questions)
	assert.Empty(t, ws.Chunks)
	assert.Nil(t, ws.Test)
	assert.False(t, ws.Stale())

	ws.ClearDocument()
	assert.Nil(t, ws.Document)
}

func TestWorkspace_TestFlow(t *testing.T) {
	t.Parallel()

	ws := &Workspace{}
	_, err := ws.SubmitTest()
	assert.ErrorIs(t, err, ErrNoActiveTest)

	now := time.Now()
	ws.StartTest(models.DifficultyEasy, sampleQuestions(), true, 0, now)
	assert.Equal(t, DefaultSecondsPerQuestion, ws.Test.PerQuestionSeconds)

	assert.ErrorIs(t, ws.Answer(5, "A"), ErrInvalidAnswer)
	assert.ErrorIs(t, ws.Answer(1, "C"), ErrInvalidAnswer)
	assert.ErrorIs(t, ws.Answer(0, "AB"), ErrInvalidAnswer)
	require.NoError(t, ws.Answer(0, "A"))

	_, err = ws.SubmitTest()
	assert.ErrorIs(t, err, ErrTestIncomplete)

	require.NoError(t, ws.Answer(1, "A"))
	res, err := ws.SubmitTest()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Score)
	assert.Equal(t, 50.0, res.Percent)
	assert.True(t, ws.Test.Submitted)

	assert.ErrorIs(t, ws.Answer(0, "B"), ErrTestSubmitted)
	_, err = ws.SubmitTest()
	assert.ErrorIs(t, err, ErrTestSubmitted)

	require.NoError(t, ws.RetakeTest(now.Add(time.Minute)))
	assert.Empty(t, ws.Test.Answers)
	assert.False(t, ws.Test.Submitted)
	assert.Len(t, ws.Test.Questions, 2)
}

func TestClampSecondsPerQuestion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want int
	}{
		{0, 45},
		{-3, 45},
		{5, 15},
		{15, 15},
		{47, 45},
		{120, 120},
		{500, 120},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampSecondsPerQuestion(tt.in), "input %d", tt.in)
	}
}
