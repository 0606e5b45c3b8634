package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"quizgenius/internal/models"
)

var (
	ErrUsernameTooShort = errors.New("username must be at least 3 characters")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	ErrUsernameTaken    = errors.New("username already taken")
	ErrUserNotFound     = errors.New("user not found")
	ErrWrongPassword    = errors.New("wrong password")
	ErrReservedUsername = errors.New("username is reserved")
)

const (
	minUsernameLen = 3
	minPasswordLen = 6
	// GuestUsername identifies guest workspaces; it can never be registered.
	GuestUsername = "__guest__"
)

type UserService struct {
	db   *sql.DB
	cost int
	log  *zap.Logger
}

func NewUserService(db *sql.DB, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{db: db, cost: bcrypt.DefaultCost, log: log}
}

// Signup validates and stores a new account. An empty display name falls
// back to the username.
func (s *UserService) Signup(ctx context.Context, username, password, displayName string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if utf8.RuneCountInString(username) < minUsernameLen {
		return nil, ErrUsernameTooShort
	}
	if username == GuestUsername {
		return nil, ErrReservedUsername
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return nil, ErrPasswordTooShort
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = username
	}

	if _, err := s.findByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		CreatedAt:    time.Now().UTC(),
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, display_name, created_at)
		VALUES (?, ?, ?, ?);
	`, user.Username, user.PasswordHash, user.DisplayName, user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if user.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}

	s.log.Info("user registered", zap.String("username", username))
	return user, nil
}

func (s *UserService) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.findByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrWrongPassword
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, display_name, created_at FROM users WHERE id = ?;
	`, id))
}

// Guest returns the shared identity used for unauthenticated sessions.
func (s *UserService) Guest() *models.User {
	return &models.User{Username: GuestUsername, DisplayName: "Guest"}
}

func (s *UserService) findByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, display_name, created_at FROM users WHERE username = ?;
	`, username))
}

func (s *UserService) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.DisplayName, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}
