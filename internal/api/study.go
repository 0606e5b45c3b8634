package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"quizgenius/internal/models"
	"quizgenius/internal/services"
)

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	switch r.Method {
	case http.MethodPost:
		s.handleUploadDocument(w, r, ws)
	case http.MethodDelete:
		if _, err := s.workspaces.Update(ws.ID, func(draft *services.Workspace) error {
			draft.ClearDocument()
			return nil
		}); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	default:
		methodNotAllowed(w, http.MethodPost, http.MethodDelete)
	}
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d MB", s.maxUpload>>20))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	qt := ws.QuestionType
	if raw := r.FormValue("type"); raw != "" {
		parsed, ok := models.ParseQuestionType(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "type must be MCQ, TF or FIB")
			return
		}
		qt = parsed
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "only PDF files are supported")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	doc, err := s.quiz.Analyze(r.Context(), header.Filename, data)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	updated, err := s.workspaces.Update(ws.ID, func(draft *services.Workspace) error {
		draft.QuestionType = qt
		// the same text keeps the generated questions
		if draft.Document != nil && draft.Document.Hash == doc.Hash {
			draft.Document = doc
			return nil
		}
		draft.SetDocument(doc)
		return nil
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document":      updated.Document,
		"questionType":  updated.QuestionType,
		"questionCount": len(updated.Questions),
		"defaultCount":  min(services.DefaultStudyCount, doc.MaxQuestions),
	})
}

type previewRequest struct {
	Type string `json:"type"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req previewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	qt, err := resolveType(req.Type, ws.QuestionType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.quiz.WithKey(ws.APIKey).Preview(r.Context(), ws.Document, qt)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"question": q, "answer": q.Answer()})
}

type studyJobRequest struct {
	Type       string   `json:"type"`
	Topics     []string `json:"topics"`
	Count      int      `json:"count"`
	Difficulty string   `json:"difficulty"`
}

func (s *Server) handleCreateStudyJob(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req studyJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if ws.Document == nil {
		s.writeServiceError(w, services.ErrNoDocument)
		return
	}
	qt, err := resolveType(req.Type, ws.QuestionType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
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

	quiz := s.quiz.WithKey(ws.APIKey)
	if !quiz.Enabled() {
		s.writeServiceError(w, services.ErrAIUnavailable)
		return
	}
	if s.jobs.Running(ws.ID, JobKindStudy) {
		s.writeServiceError(w, errJobRunning)
		return
	}

	study := services.StudyRequest{
		Text:   ws.Document.Text,
		Topics: req.Topics,
		Count:  studyCount(req.Count, ws.Document.MaxQuestions),
		Type:   qt,
		Level:  level,
	}
	if _, err := s.workspaces.Update(ws.ID, func(draft *services.Workspace) error {
		draft.QuestionType = qt
		return nil
	}); err != nil {
		s.writeServiceError(w, err)
		return
	}

	jobID, snapshot := s.jobs.CreateJob(JobKindStudy, ws.ID)
	go s.runStudyJob(jobID, ws.ID, quiz, study, ws.Document.Hash)

	writeJSON(w, http.StatusAccepted, snapshot)
}

// studyCount applies the 1..max range with a default of min(10, max).
func studyCount(requested, maxQuestions int) int {
	maxQuestions = max(maxQuestions, 1)
	if requested <= 0 {
		return min(services.DefaultStudyCount, maxQuestions)
	}
	return min(requested, maxQuestions)
}

func (s *Server) runStudyJob(jobID, workspaceID string, quiz *services.QuizService, req services.StudyRequest, hash string) {
	ctx, cancel := context.WithTimeout(context.Background(), generationTimeout)
	defer cancel()

	s.jobs.MarkProcessing(jobID)
	set, err := quiz.GenerateStudySet(ctx, req, s.jobProgress(jobID))
	if err != nil {
		s.log.Warn("study generation failed", zap.String("job", jobID), zap.Error(err))
		s.jobs.MarkFailed(jobID, err.Error())
		return
	}
	if _, err := s.workspaces.Update(workspaceID, func(draft *services.Workspace) error {
		draft.SetStudySet(set, hash)
		return nil
	}); err != nil {
		s.jobs.MarkFailed(jobID, err.Error())
		return
	}
	s.jobs.MarkCompleted(jobID, len(set.Questions))
}

func (s *Server) jobProgress(jobID string) services.ProgressCallback {
	return func(step, message string, current, total int) {
		s.jobs.UpdateProgress(jobID, step, message, current, total)
	}
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	job, ok := s.jobs.GetJob(r.PathValue("id"))
	if !ok || job.WorkspaceID != ws.ID {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	bookmarks, err := s.progress.For(ws).Bookmarks(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	marked := make(map[string]bool, len(bookmarks))
	for _, b := range bookmarks {
		marked[b] = true
	}

	items := make([]map[string]any, 0, len(ws.Questions))
	for i, q := range ws.Questions {
		items = append(items, map[string]any{
			"index":      i,
			"question":   q,
			"answer":     q.Answer(),
			"bookmarked": marked[q.Question],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"questions": items,
		"type":      ws.QuestionType,
		"stale":     ws.Stale(),
	})
}

func (s *Server) handleBookmark(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	idx, err := questionIndex(r, ws)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	on, err := s.progress.For(ws).ToggleBookmark(r.Context(), ws.Questions[idx].Question)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"index": idx, "bookmarked": on})
}

func (s *Server) handleFlashcards(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	query := r.URL.Query()
	rawFilter := query.Get("filter")
	if rawFilter == "" {
		rawFilter = ws.FlashcardFilter
	}
	filter, err := services.ParseFlashcardFilter(rawFilter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	idx := ws.FlashcardIndex
	if string(filter) != ws.FlashcardFilter {
		idx = 0
	}
	if raw := query.Get("index"); raw != "" {
		if idx, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "index must be a number")
			return
		}
	}
	s.writeFlashcard(w, r, ws, filter, idx)
}

type moveRequest struct {
	Action string `json:"action"`
	Filter string `json:"filter"`
}

func (s *Server) handleFlashcardMove(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rawFilter := req.Filter
	if rawFilter == "" {
		rawFilter = ws.FlashcardFilter
	}
	filter, err := services.ParseFlashcardFilter(rawFilter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	deck, err := s.flashcards.Deck(r.Context(), ws, s.progress.For(ws), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	idx := ws.FlashcardIndex
	if string(filter) != ws.FlashcardFilter {
		idx = 0
	}
	next, err := s.flashcards.Move(idx, len(deck), req.Action)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeFlashcard(w, r, ws, filter, next)
}

// writeFlashcard renders the card at idx and remembers the position.
func (s *Server) writeFlashcard(w http.ResponseWriter, r *http.Request, ws *services.Workspace, filter services.FlashcardFilter, idx int) {
	view, err := s.flashcards.View(r.Context(), ws, s.progress.For(ws), filter, idx)
	if errors.Is(err, services.ErrEmptyDeck) {
		writeJSON(w, http.StatusOK, map[string]any{
			"card":    nil,
			"filter":  filter,
			"total":   0,
			"message": "No cards match this filter.",
		})
		return
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if _, err := s.workspaces.Update(ws.ID, func(draft *services.Workspace) error {
		draft.FlashcardFilter = string(view.Filter)
		draft.FlashcardIndex = view.Position
		return nil
	}); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type reviewRequest struct {
	Rating string `json:"rating"`
}

func (s *Server) handleFlashcardReview(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	idx, err := questionIndex(r, ws)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rating, err := services.ParseRating(req.Rating)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if ws.Guest {
		s.writeServiceError(w, services.ErrGuestReview)
		return
	}

	card, reviewLog, err := s.flashcards.Review(r.Context(), ws.UserID, ws.Questions[idx].Question, rating)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"card": map[string]any{
			"index":      idx,
			"due":        nullTimeToString(card.Due),
			"state":      card.State,
			"stability":  card.Stability,
			"difficulty": card.Difficulty,
			"reps":       card.Reps,
			"lapses":     card.Lapses,
		},
		"log": map[string]any{
			"rating":        reviewLog.Rating,
			"scheduledDays": reviewLog.ScheduledDays,
			"reviewedAt":    reviewLog.ReviewedAt.Format(timeLayout),
		},
	})
}

func resolveType(raw string, fallback models.QuestionType) (models.QuestionType, error) {
	if raw == "" {
		if fallback == "" {
			return models.QuestionMCQ, nil
		}
		return fallback, nil
	}
	qt, ok := models.ParseQuestionType(raw)
	if !ok {
		return "", errors.New("type must be MCQ, TF or FIB")
	}
	return qt, nil
}
