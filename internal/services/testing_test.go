package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quizgenius/internal/db"
	"quizgenius/internal/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestUser(t *testing.T, conn *sql.DB, username string) *models.User {
	t.Helper()
	users := NewUserService(conn, zap.NewNop())
	users.cost = 4
	user, err := users.Signup(context.Background(), username, "secret123", "")
	require.NoError(t, err)
	return user
}
