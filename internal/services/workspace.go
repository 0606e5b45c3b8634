package services

import (
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizgenius/internal/models"
)

var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrNoActiveTest      = errors.New("no test in progress")
	ErrTestSubmitted     = errors.New("test already submitted")
	ErrTestIncomplete    = errors.New("answer every question before submitting")
	ErrInvalidAnswer     = errors.New("invalid answer")
)

const (
	MinSecondsPerQuestion     = 15
	MaxSecondsPerQuestion     = 120
	DefaultSecondsPerQuestion = 45
	secondsStep               = 5
)

// TestSession is a generated test and the answers given so far.
type TestSession struct {
	Level              models.Difficulty `json:"difficulty"`
	Questions          []models.Question `json:"questions"`
	Answers            map[int]string    `json:"answers"`
	StartedAt          time.Time         `json:"startedAt"`
	Timed              bool              `json:"timed"`
	PerQuestionSeconds int               `json:"perQuestionSeconds"`
	Submitted          bool              `json:"submitted"`
	Result             *TestResult       `json:"result,omitempty"`
}

// Answered counts questions with a recorded answer.
func (t *TestSession) Answered() int {
	return len(t.Answers)
}

// Workspace is the per-session study state: the uploaded document, its
// generated questions and the current test.
type Workspace struct {
	ID          string
	UserID      int64
	Username    string
	DisplayName string
	Guest       bool
	APIKey      string

	QuestionType  models.QuestionType
	Document      *models.Document
	Chunks        []string
	Questions     []models.Question
	QuestionsHash string
	Test          *TestSession

	FlashcardFilter string
	FlashcardIndex  int

	// Progress holds guest history, bookmarks and mistakes. Registered users
	// persist them in the database instead.
	Progress *MemoryProgress

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stale reports whether the questions were generated from a different
// document than the current one.
func (w *Workspace) Stale() bool {
	return w.QuestionsHash != "" && w.Document != nil && w.QuestionsHash != w.Document.Hash
}

// SetDocument replaces the document and discards everything derived from the
// previous one.
func (w *Workspace) SetDocument(doc *models.Document) {
	w.Document = doc
	w.Chunks = nil
	w.Questions = nil
	w.QuestionsHash = ""
	w.Test = nil
	w.FlashcardIndex = 0
}

func (w *Workspace) ClearDocument() {
	w.SetDocument(nil)
}

// SetStudySet stores freshly generated questions tagged with the document hash.
func (w *Workspace) SetStudySet(set *StudySet, hash string) {
	w.Questions = set.Questions
	w.Chunks = set.Chunks
	w.QuestionsHash = hash
	w.Test = nil
	w.FlashcardIndex = 0
}

// StartTest installs a new test, replacing any previous one.
func (w *Workspace) StartTest(level models.Difficulty, questions []models.Question, timed bool, perQuestion int, now time.Time) {
	w.Test = &TestSession{
		Level:              level,
		Questions:          questions,
		Answers:            map[int]string{},
		StartedAt:          now,
		Timed:              timed,
		PerQuestionSeconds: ClampSecondsPerQuestion(perQuestion),
	}
}

// Answer records letter for question index of the active test.
func (w *Workspace) Answer(index int, letter string) error {
	if w.Test == nil {
		return ErrNoActiveTest
	}
	if w.Test.Submitted {
		return ErrTestSubmitted
	}
	if index < 0 || index >= len(w.Test.Questions) {
		return ErrInvalidAnswer
	}
	if w.Test.Questions[index].OptionFor(letter) == "" || len(letter) != 1 {
		return ErrInvalidAnswer
	}
	w.Test.Answers[index] = letter
	return nil
}

// SubmitTest grades the active test. Every question must be answered.
func (w *Workspace) SubmitTest() (TestResult, error) {
	if w.Test == nil {
		return TestResult{}, ErrNoActiveTest
	}
	if w.Test.Submitted {
		return TestResult{}, ErrTestSubmitted
	}
	if w.Test.Answered() < len(w.Test.Questions) {
		return TestResult{}, ErrTestIncomplete
	}
	result := Grade(w.Test.Questions, w.Test.Answers)
	w.Test.Submitted = true
	w.Test.Result = &result
	return result, nil
}

// RetakeTest clears the answers but keeps the questions.
func (w *Workspace) RetakeTest(now time.Time) error {
	if w.Test == nil {
		return ErrNoActiveTest
	}
	w.Test.Answers = map[int]string{}
	w.Test.Submitted = false
	w.Test.Result = nil
	w.Test.StartedAt = now
	return nil
}

// ClampSecondsPerQuestion keeps the timer within 15..120 in steps of 5.
// Zero or negative selects the default of 45.
func ClampSecondsPerQuestion(sec int) int {
	if sec <= 0 {
		return DefaultSecondsPerQuestion
	}
	sec = min(max(sec, MinSecondsPerQuestion), MaxSecondsPerQuestion)
	return sec - sec%secondsStep
}

func (w *Workspace) clone() *Workspace {
	cp := *w
	if w.Document != nil {
		doc := *w.Document
		doc.Topics = slices.Clone(w.Document.Topics)
		cp.Document = &doc
	}
	cp.Chunks = slices.Clone(w.Chunks)
	cp.Questions = cloneQuestions(w.Questions)
	if w.Test != nil {
		test := *w.Test
		test.Questions = cloneQuestions(w.Test.Questions)
		test.Answers = maps.Clone(w.Test.Answers)
		if w.Test.Result != nil {
			res := *w.Test.Result
			res.Wrong = cloneQuestions(w.Test.Result.Wrong)
			res.Review = slices.Clone(w.Test.Result.Review)
			test.Result = &res
		}
		cp.Test = &test
	}
	return &cp
}

func cloneQuestions(qs []models.Question) []models.Question {
	if qs == nil {
		return nil
	}
	out := make([]models.Question, len(qs))
	for i, q := range qs {
		q.Options = slices.Clone(q.Options)
		out[i] = q
	}
	return out
}

// WorkspaceStore keeps workspaces in memory. Reads return copies so callers
// never share state with the store.
type WorkspaceStore struct {
	mu    sync.RWMutex
	items map[string]*Workspace
	now   func() time.Time
}

func NewWorkspaceStore() *WorkspaceStore {
	return &WorkspaceStore{
		items: make(map[string]*Workspace),
		now:   time.Now,
	}
}

// Create registers a workspace for the given identity. Guests get an
// in-memory progress tracker.
func (s *WorkspaceStore) Create(user *models.User, guest bool) *Workspace {
	now := s.now().UTC()
	ws := &Workspace{
		ID:           uuid.NewString(),
		Guest:        guest,
		QuestionType: models.QuestionMCQ,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if user != nil {
		ws.UserID = user.ID
		ws.Username = user.Username
		ws.DisplayName = user.DisplayName
	}
	if guest {
		ws.Progress = NewMemoryProgress()
	}

	s.mu.Lock()
	s.items[ws.ID] = ws
	s.mu.Unlock()
	return ws.clone()
}

func (s *WorkspaceStore) Get(id string) (*Workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return ws.clone(), true
}

// Update applies fn under the store lock and returns a copy of the result.
// When fn fails the workspace is left unchanged.
func (s *WorkspaceStore) Update(id string, fn func(*Workspace) error) (*Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.items[id]
	if !ok {
		return nil, ErrWorkspaceNotFound
	}
	draft := ws.clone()
	if err := fn(draft); err != nil {
		return nil, err
	}
	draft.UpdatedAt = s.now().UTC()
	s.items[id] = draft
	return draft.clone(), nil
}

func (s *WorkspaceStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Prune removes workspaces idle for longer than maxIdle and returns how many
// were dropped.
func (s *WorkspaceStore) Prune(maxIdle time.Duration) int {
	cutoff := s.now().UTC().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, ws := range s.items {
		if ws.UpdatedAt.Before(cutoff) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

func (s *WorkspaceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
