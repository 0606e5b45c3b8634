package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"quizgenius/internal/models"
	"quizgenius/internal/services"
)

type testStartRequest struct {
	Difficulty         string `json:"difficulty"`
	Type               string `json:"type"`
	Timed              bool   `json:"timed"`
	PerQuestionSeconds int    `json:"perQuestionSeconds"`
}

func (s *Server) handleTestStart(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req testStartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if ws.Document == nil {
		s.writeServiceError(w, services.ErrNoDocument)
		return
	}
	level := ws.Document.Difficulty
	if req.Difficulty != "" {
		parsed, ok := models.ParseDifficulty(req.Difficulty)
		if !ok {
			writeError(w, http.StatusBadRequest, "difficulty must be Easy, Medium or Hard")
			return
		}
		level = parsed
	}
	qt, err := resolveType(req.Type, ws.QuestionType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quiz := s.quiz.WithKey(ws.APIKey)
	if !quiz.Enabled() {
		s.writeServiceError(w, services.ErrAIUnavailable)
		return
	}
	if s.jobs.Running(ws.ID, JobKindTest) {
		s.writeServiceError(w, errJobRunning)
		return
	}

	gen := services.TestRequest{
		Chunks:       ws.Chunks,
		FallbackText: ws.Document.Text,
		Type:         qt,
		Level:        level,
	}
	jobID, snapshot := s.jobs.CreateJob(JobKindTest, ws.ID)
	go s.runTestJob(jobID, ws.ID, quiz, gen, req.Timed, req.PerQuestionSeconds)

	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) runTestJob(jobID, workspaceID string, quiz *services.QuizService, req services.TestRequest, timed bool, perQuestion int) {
	ctx, cancel := context.WithTimeout(context.Background(), generationTimeout)
	defer cancel()

	s.jobs.MarkProcessing(jobID)
	questions, err := quiz.GenerateTest(ctx, req, s.jobProgress(jobID))
	if err != nil {
		s.log.Warn("test generation failed", zap.String("job", jobID), zap.Error(err))
		s.jobs.MarkFailed(jobID, err.Error())
		return
	}
	if _, err := s.workspaces.Update(workspaceID, func(draft *services.Workspace) error {
		draft.StartTest(req.Level, questions, timed, perQuestion, s.now().UTC())
		return nil
	}); err != nil {
		s.jobs.MarkFailed(jobID, err.Error())
		return
	}
	s.jobs.MarkCompleted(jobID, len(questions))
}

type testQuestionView struct {
	Index    int                 `json:"index"`
	Question string              `json:"question"`
	Options  []string            `json:"options"`
	Type     models.QuestionType `json:"type"`
	Answer   string              `json:"answer,omitempty"`
	Correct  string              `json:"correct,omitempty"`
}

type testView struct {
	Difficulty         models.Difficulty    `json:"difficulty"`
	Questions          []testQuestionView   `json:"questions"`
	Answered           int                  `json:"answered"`
	Total              int                  `json:"total"`
	Timed              bool                 `json:"timed"`
	PerQuestionSeconds int                  `json:"perQuestionSeconds"`
	StartedAt          time.Time            `json:"startedAt"`
	RemainingSeconds   *int                 `json:"remainingSeconds,omitempty"`
	Submitted          bool                 `json:"submitted"`
	Result             *services.TestResult `json:"result,omitempty"`
}

// newTestView hides the correct letters until the test is submitted. The
// countdown is informational; answers are accepted after it reaches zero.
func newTestView(t *services.TestSession, now time.Time) testView {
	view := testView{
		Difficulty:         t.Level,
		Answered:           t.Answered(),
		Total:              len(t.Questions),
		Timed:              t.Timed,
		PerQuestionSeconds: t.PerQuestionSeconds,
		StartedAt:          t.StartedAt,
		Submitted:          t.Submitted,
		Result:             t.Result,
	}
	for i, q := range t.Questions {
		item := testQuestionView{
			Index:    i,
			Question: q.Question,
			Options:  q.Options,
			Type:     q.Type,
			Answer:   t.Answers[i],
		}
		if t.Submitted {
			item.Correct = q.Correct
		}
		view.Questions = append(view.Questions, item)
	}
	if t.Timed && !t.Submitted {
		budget := time.Duration(t.PerQuestionSeconds*len(t.Questions)) * time.Second
		remaining := max(int((budget - now.Sub(t.StartedAt)).Seconds()), 0)
		view.RemainingSeconds = &remaining
	}
	return view
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if ws.Test == nil {
		s.writeServiceError(w, services.ErrNoActiveTest)
		return
	}
	writeJSON(w, http.StatusOK, newTestView(ws.Test, s.now().UTC()))
}

type answerRequest struct {
	Index  int    `json:"index"`
	Letter string `json:"letter"`
}

func (s *Server) handleTestAnswer(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated, err := s.workspaces.Update(ws.ID, func(draft *services.Workspace) error {
		return draft.Answer(req.Index, req.Letter)
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"answered": updated.Test.Answered(),
		"total":    len(updated.Test.Questions),
	})
}

func (s *Server) handleTestSubmit(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var result services.TestResult
	updated, err := s.workspaces.Update(ws.ID, func(draft *services.Workspace) error {
		var err error
		result, err = draft.SubmitTest()
		return err
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	source := ""
	if updated.Document != nil {
		source = updated.Document.Name
	}
	entry, err := s.progress.SaveScore(r.Context(), s.progress.For(updated), updated.Test.Level, result, source, s.now())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": result,
		"entry":  entry,
		"test":   newTestView(updated.Test, s.now().UTC()),
	})
}

func (s *Server) handleTestRetake(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	updated, err := s.workspaces.Update(ws.ID, func(draft *services.Workspace) error {
		return draft.RetakeTest(s.now().UTC())
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTestView(updated.Test, s.now().UTC()))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	stats, history, err := s.progress.Stats(r.Context(), s.progress.For(ws), len(ws.Questions))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":    userJSON(ws, nil),
		"stats":   stats,
		"history": history,
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	if err := s.progress.For(ws).ClearScores(r.Context()); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if len(ws.Questions) == 0 {
		s.writeServiceError(w, services.ErrNoQuestions)
		return
	}
	title := "QuizGenius Quiz"
	if ws.Document != nil && ws.Document.Name != "" {
		title = ws.Document.Name
	}
	page, err := services.ExportHTML(ws.Questions, title, s.now())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+services.ExportFilename())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}
