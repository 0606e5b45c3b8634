package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"quizgenius/internal/services"
	"quizgenius/internal/session"
)

const (
	maxMultipartMemory = 8 << 20 // 8 MB
	maxJSONBody        = 1 << 20
	generationTimeout  = 10 * time.Minute
)

var errJobRunning = errors.New("a generation job is already running")

type Server struct {
	mux        *http.ServeMux
	quiz       *services.QuizService
	users      *services.UserService
	progress   *services.ProgressService
	flashcards *services.FlashcardService
	workspaces *services.WorkspaceStore
	sessions   *session.Manager
	jobs       *JobManager
	log        *zap.Logger
	maxUpload  int64
	now        func() time.Time
}

// Dependencies groups the services the HTTP layer dispatches to.
type Dependencies struct {
	Quiz           *services.QuizService
	Users          *services.UserService
	Progress       *services.ProgressService
	Flashcards     *services.FlashcardService
	Workspaces     *services.WorkspaceStore
	Sessions       *session.Manager
	MaxUploadBytes int64
}

func NewServer(deps Dependencies, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 200 << 20
	}
	s := &Server{
		mux:        http.NewServeMux(),
		quiz:       deps.Quiz,
		users:      deps.Users,
		progress:   deps.Progress,
		flashcards: deps.Flashcards,
		workspaces: deps.Workspaces,
		sessions:   deps.Sessions,
		jobs:       NewJobManager(),
		log:        log,
		maxUpload:  maxUpload,
		now:        time.Now,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Jobs exposes the generation job tracker so the caller can prune it.
func (s *Server) Jobs() *JobManager {
	return s.jobs
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/guest", s.handleGuest)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/api/me", s.withWorkspace(s.handleMe))
	s.mux.HandleFunc("/api/settings/key", s.withWorkspace(s.handleSettingsKey))

	s.mux.HandleFunc("/api/document", s.withWorkspace(s.handleDocument))
	s.mux.HandleFunc("/api/questions", s.withWorkspace(s.handleQuestions))
	s.mux.HandleFunc("/api/questions/preview", s.withWorkspace(s.handlePreview))
	s.mux.HandleFunc("/api/questions/jobs", s.withWorkspace(s.handleCreateStudyJob))
	s.mux.HandleFunc("/api/questions/{idx}/bookmark", s.withWorkspace(s.handleBookmark))
	s.mux.HandleFunc("/api/jobs/{id}", s.withWorkspace(s.handleJobStatus))

	s.mux.HandleFunc("/api/flashcards", s.withWorkspace(s.handleFlashcards))
	s.mux.HandleFunc("/api/flashcards/move", s.withWorkspace(s.handleFlashcardMove))
	s.mux.HandleFunc("/api/flashcards/{idx}/review", s.withWorkspace(s.handleFlashcardReview))

	s.mux.HandleFunc("/api/test", s.withWorkspace(s.handleTest))
	s.mux.HandleFunc("/api/test/start", s.withWorkspace(s.handleTestStart))
	s.mux.HandleFunc("/api/test/answer", s.withWorkspace(s.handleTestAnswer))
	s.mux.HandleFunc("/api/test/submit", s.withWorkspace(s.handleTestSubmit))
	s.mux.HandleFunc("/api/test/retake", s.withWorkspace(s.handleTestRetake))

	s.mux.HandleFunc("/api/dashboard", s.withWorkspace(s.handleDashboard))
	s.mux.HandleFunc("/api/dashboard/history", s.withWorkspace(s.handleClearHistory))
	s.mux.HandleFunc("/api/export", s.withWorkspace(s.handleExport))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"aiEnabled":  s.quiz.Enabled(),
		"workspaces": s.workspaces.Len(),
	})
}

type workspaceHandler func(w http.ResponseWriter, r *http.Request, ws *services.Workspace)

// withWorkspace resolves the session cookie to its workspace and rejects
// requests without one.
func (s *Server) withWorkspace(next workspaceHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.sessions.WorkspaceID(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "sign in or continue as guest")
			return
		}
		ws, ok := s.workspaces.Get(id)
		if !ok {
			writeError(w, http.StatusUnauthorized, "session expired, sign in again")
			return
		}
		next(w, r, ws)
	}
}

// writeServiceError maps service sentinels to HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.log.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrUsernameTooShort),
		errors.Is(err, services.ErrPasswordTooShort),
		errors.Is(err, services.ErrReservedUsername),
		errors.Is(err, services.ErrInvalidAnswer),
		errors.Is(err, services.ErrInvalidFilter),
		errors.Is(err, services.ErrInvalidRating),
		errors.Is(err, services.ErrInvalidMovement):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrWrongPassword):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrGuestReview):
		return http.StatusForbidden
	case errors.Is(err, services.ErrQuestionIndex),
		errors.Is(err, services.ErrWorkspaceNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrUsernameTaken),
		errors.Is(err, services.ErrNoDocument),
		errors.Is(err, services.ErrNoQuestions),
		errors.Is(err, services.ErrNoActiveTest),
		errors.Is(err, services.ErrTestSubmitted),
		errors.Is(err, services.ErrTestIncomplete),
		errors.Is(err, errJobRunning):
		return http.StatusConflict
	case errors.Is(err, services.ErrEmptyPDF),
		errors.Is(err, services.ErrInvalidPDF),
		errors.Is(err, services.ErrEmptyDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrAIUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads an optional JSON body into dst. An empty body leaves dst
// untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// questionIndex parses the {idx} path value against the study set.
func questionIndex(r *http.Request, ws *services.Workspace) (int, error) {
	idx, err := strconv.Atoi(r.PathValue("idx"))
	if err != nil || idx < 0 || idx >= len(ws.Questions) {
		return 0, services.ErrQuestionIndex
	}
	return idx, nil
}

const timeLayout = time.RFC3339

func nullTimeToString(t sql.NullTime) *string {
	if t.Valid {
		str := t.Time.Format(timeLayout)
		return &str
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
