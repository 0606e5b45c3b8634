package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"quizgenius/internal/models"
	"quizgenius/internal/services"
)

type credentials struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.users.Signup(r.Context(), req.Username, req.Password, req.DisplayName)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	ws, err := s.startSession(w, r, user, false)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": userJSON(ws, user)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	ws, err := s.startSession(w, r, user, false)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userJSON(ws, user)})
}

func (s *Server) handleGuest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	user := s.users.Guest()
	ws, err := s.startSession(w, r, user, true)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userJSON(ws, user)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if id, err := s.sessions.WorkspaceID(r); err == nil {
		s.workspaces.Delete(id)
	}
	if err := s.sessions.Clear(w, r); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// startSession replaces any workspace bound to the request with a fresh one
// for user.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, user *models.User, guest bool) (*services.Workspace, error) {
	if id, err := s.sessions.WorkspaceID(r); err == nil {
		s.workspaces.Delete(id)
	}
	ws := s.workspaces.Create(user, guest)
	if err := s.sessions.Bind(w, r, ws.ID); err != nil {
		s.workspaces.Delete(ws.ID)
		return nil, err
	}
	s.log.Info("session started", zap.String("username", user.Username), zap.Bool("guest", guest))
	return ws, nil
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	var user *models.User
	if !ws.Guest {
		u, err := s.users.Get(r.Context(), ws.UserID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		user = u
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":          userJSON(ws, user),
		"aiEnabled":     s.quiz.WithKey(ws.APIKey).Enabled(),
		"customKey":     ws.APIKey != "",
		"document":      ws.Document,
		"questionType":  ws.QuestionType,
		"questionCount": len(ws.Questions),
		"stale":         ws.Stale(),
	})
}

type keyRequest struct {
	APIKey string `json:"apiKey"`
}

func (s *Server) handleSettingsKey(w http.ResponseWriter, r *http.Request, ws *services.Workspace) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req keyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	key := strings.TrimSpace(req.APIKey)
	if _, err := s.workspaces.Update(ws.ID, func(draft *services.Workspace) error {
		draft.APIKey = key
		return nil
	}); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"aiEnabled": s.quiz.WithKey(key).Enabled(),
		"customKey": key != "",
	})
}

func userJSON(ws *services.Workspace, user *models.User) map[string]any {
	out := map[string]any{
		"id":          ws.UserID,
		"username":    ws.Username,
		"displayName": ws.DisplayName,
		"guest":       ws.Guest,
	}
	if user != nil && !user.CreatedAt.IsZero() {
		out["memberSince"] = user.CreatedAt.Format("January 2006")
	}
	return out
}
