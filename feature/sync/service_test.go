package sync

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"
)

// setupMockDB creates a mock GORM DB for testing.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}

	return gormDB, mock
}

func TestService_ListRuns(t *testing.T) {
	db, mock := setupMockDB(t)
	svc := NewService(db, nil, nil, zap.NewNop())

	started := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "connection_id", "status", "started_at", "summary", "logs"}).
		AddRow("run-b", 1, "success", started.Add(time.Hour), `{"pages":{"created":1}}`, "[]").
		AddRow("run-a", 1, "partial", started, "{}", "[]")

	// The newest run comes first and the default limit applies.
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `sync_runs` WHERE connection_id = ? ORDER BY started_at DESC LIMIT ?")).
		WithArgs(1, 20).
		WillReturnRows(rows)

	runs, err := svc.ListRuns(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].ID)
	assert.Equal(t, models.StatusSuccess, runs[0].Status)
	assert.Equal(t, 1, runs[0].Summary["pages"].Created)
	assert.Equal(t, models.StatusPartial, runs[1].Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ListRuns_ClampsOversizedLimit(t *testing.T) {
	db, mock := setupMockDB(t)
	svc := NewService(db, nil, nil, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `sync_runs` WHERE connection_id = ? ORDER BY started_at DESC LIMIT ?")).
		WithArgs(1, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "connection_id", "status"}))

	_, err := svc.ListRuns(context.Background(), 1, 5000)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
