package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/filecrate/filecrate-api/pkg/file_api/models"
	"github.com/filecrate/filecrate-api/pkg/file_api/repositories"
	"github.com/filecrate/filecrate-api/pkg/file_api/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Original{},
		&models.Derived{},
	))
	return db
}

func newOriginal(id string, clock *testutil.Clock, retention time.Duration) *models.Original {
	now := clock.Now()
	return &models.Original{
		Id:          id,
		DisplayName: "report.pdf",
		ByteSize:    42,
		MimeType:    "application/pdf",
		ToolKind:    models.ToolCompress,
		Status:      models.StatusPending,
		StorageRef:  "mem/" + id,
		CreatedAt:   now,
		ExpiresAt:   now.Add(retention),
	}
}

func TestArtifactRepository_CreateAndGetOriginal(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := repositories.NewArtifactRepositoryWithClock(setupDB(t), clock.Now)

	require.NoError(t, repo.CreateOriginal(context.Background(), newOriginal("o1", clock, time.Hour)))

	got, err := repo.GetOriginal(context.Background(), "o1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, "report.pdf", got.DisplayName)
}

func TestArtifactRepository_GetOriginal_MasksExpired(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := repositories.NewArtifactRepositoryWithClock(setupDB(t), clock.Now)

	require.NoError(t, repo.CreateOriginal(context.Background(), newOriginal("o1", clock, time.Hour)))

	// Expired rows are not found even before the reaper removed them.
	clock.Advance(61 * time.Minute)
	got, err := repo.GetOriginal(context.Background(), "o1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// The physical row is still there for the reaper.
	expired, err := repo.ExpiredOriginals(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, expired, 1)
}

func TestArtifactRepository_TransitionStatus_CAS(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := repositories.NewArtifactRepositoryWithClock(setupDB(t), clock.Now)
	require.NoError(t, repo.CreateOriginal(context.Background(), newOriginal("o1", clock, time.Hour)))

	// First claim wins.
	require.NoError(t, repo.TransitionStatus(context.Background(), "o1", models.StatusPending, models.StatusProcessing))

	// Second claim sees the row already moved.
	err := repo.TransitionStatus(context.Background(), "o1", models.StatusPending, models.StatusProcessing)
	assert.ErrorIs(t, err, repositories.ErrConflict)

	// Unknown id is also a conflict, not a silent success.
	err = repo.TransitionStatus(context.Background(), "nope", models.StatusPending, models.StatusProcessing)
	assert.ErrorIs(t, err, repositories.ErrConflict)
}

func TestArtifactRepository_CreateDerived_RequiresProcessing(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := repositories.NewArtifactRepositoryWithClock(setupDB(t), clock.Now)
	require.NoError(t, repo.CreateOriginal(context.Background(), newOriginal("o1", clock, time.Hour)))

	derived := &models.Derived{
		Id:            "d1",
		StorageRef:    "mem/d1",
		DisplayName:   "report.pdf.gz",
		DownloadToken: "tok-d1",
		CreatedAt:     clock.Now(),
		ExpiresAt:     clock.Now().Add(time.Hour),
	}

	// Original is still pending: the completion CAS must miss.
	err := repo.CreateDerived(context.Background(), "o1", derived)
	assert.ErrorIs(t, err, repositories.ErrConflict)

	// And the failed transaction may not leave a Derived row behind.
	byToken, err := repo.GetDerivedByToken(context.Background(), "tok-d1")
	require.NoError(t, err)
	assert.Nil(t, byToken)

	require.NoError(t, repo.TransitionStatus(context.Background(), "o1", models.StatusPending, models.StatusProcessing))
	require.NoError(t, repo.CreateDerived(context.Background(), "o1", derived))

	got, err := repo.GetOriginal(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	byOriginal, err := repo.GetDerivedForOriginal(context.Background(), "o1")
	require.NoError(t, err)
	require.NotNil(t, byOriginal)
	assert.Equal(t, "d1", byOriginal.Id)
	assert.Equal(t, "o1", byOriginal.OriginalID)
}

func TestArtifactRepository_MarkFailed(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := repositories.NewArtifactRepositoryWithClock(setupDB(t), clock.Now)
	require.NoError(t, repo.CreateOriginal(context.Background(), newOriginal("o1", clock, time.Hour)))
	require.NoError(t, repo.TransitionStatus(context.Background(), "o1", models.StatusPending, models.StatusProcessing))

	require.NoError(t, repo.MarkFailed(context.Background(), "o1", models.FailureUnsupportedInput, "gzip: bad magic"))

	got, err := repo.GetOriginal(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, models.FailureUnsupportedInput, got.FailureCategory)

	// Terminal: no transition leads out of failed.
	err = repo.TransitionStatus(context.Background(), "o1", models.StatusFailed, models.StatusProcessing)
	assert.ErrorIs(t, err, repositories.ErrConflict)

	// But MarkFailed itself only fires from processing.
	err = repo.MarkFailed(context.Background(), "o1", models.FailureInternal, "again")
	assert.ErrorIs(t, err, repositories.ErrConflict)
}

func TestArtifactRepository_GetDerivedByToken_MasksExpired(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := repositories.NewArtifactRepositoryWithClock(setupDB(t), clock.Now)
	require.NoError(t, repo.CreateOriginal(context.Background(), newOriginal("o1", clock, time.Hour)))
	require.NoError(t, repo.TransitionStatus(context.Background(), "o1", models.StatusPending, models.StatusProcessing))
	require.NoError(t, repo.CreateDerived(context.Background(), "o1", &models.Derived{
		Id:            "d1",
		StorageRef:    "mem/d1",
		DownloadToken: "tok-d1",
		CreatedAt:     clock.Now(),
		ExpiresAt:     clock.Now().Add(30 * time.Minute),
	}))

	got, err := repo.GetDerivedByToken(context.Background(), "tok-d1")
	require.NoError(t, err)
	require.NotNil(t, got)

	clock.Advance(31 * time.Minute)
	got, err = repo.GetDerivedByToken(context.Background(), "tok-d1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestArtifactRepository_ListOriginals_OwnerScoped(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := repositories.NewArtifactRepositoryWithClock(setupDB(t), clock.Now)

	owner := "user-1"
	mine := newOriginal("mine", clock, time.Hour)
	mine.OwnerRef = &owner
	require.NoError(t, repo.CreateOriginal(context.Background(), mine))
	require.NoError(t, repo.CreateOriginal(context.Background(), newOriginal("anon", clock, time.Hour)))

	files, pagination, err := repo.ListOriginals(context.Background(), &owner, 1, 10)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "mine", files[0].Id)
	assert.Equal(t, 1, pagination.TotalRecords)

	// Anonymous listing only sees ownerless rows.
	files, _, err = repo.ListOriginals(context.Background(), nil, 1, 10)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "anon", files[0].Id)
}

func TestArtifactRepository_ExpiredListingAndDelete(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := repositories.NewArtifactRepositoryWithClock(setupDB(t), clock.Now)

	require.NoError(t, repo.CreateOriginal(context.Background(), newOriginal("soon", clock, 10*time.Minute)))
	require.NoError(t, repo.CreateOriginal(context.Background(), newOriginal("later", clock, 2*time.Hour)))

	clock.Advance(time.Hour)
	expired, err := repo.ExpiredOriginals(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "soon", expired[0].Id)

	require.NoError(t, repo.DeleteOriginal(context.Background(), "soon"))
	expired, err = repo.ExpiredOriginals(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, expired)
}
