package repositories

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/filecrate/filecrate-api/pkg/file_api/models"
	"gorm.io/gorm"
)

// ErrConflict is returned when a conditional status update matches no row:
// either the Original is gone or another caller already moved it.
var ErrConflict = errors.New("artifact status conflict")

type ArtifactRepository interface {
	CreateOriginal(ctx context.Context, o *models.Original) error
	// GetOriginal returns (nil, nil) for rows that are absent OR past their
	// expiry; read paths never distinguish the two.
	GetOriginal(ctx context.Context, id string) (*models.Original, error)
	ListOriginals(ctx context.Context, ownerRef *string, page, perPage int) ([]models.Original, models.Pagination, error)
	TransitionStatus(ctx context.Context, id string, from, to models.Status) error
	CreateDerived(ctx context.Context, originalID string, d *models.Derived) error
	MarkFailed(ctx context.Context, id, category, reason string) error
	GetDerivedByToken(ctx context.Context, token string) (*models.Derived, error)
	GetDerivedForOriginal(ctx context.Context, originalID string) (*models.Derived, error)
	ExpiredOriginals(ctx context.Context, limit int) ([]models.Original, error)
	ExpiredDeriveds(ctx context.Context, limit int) ([]models.Derived, error)
	DeleteOriginal(ctx context.Context, id string) error
	DeleteDerived(ctx context.Context, id string) error
}

type artifactRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewArtifactRepository(db *gorm.DB) ArtifactRepository {
	return &artifactRepository{db: db, now: time.Now}
}

// NewArtifactRepositoryWithClock lets tests drive the expiry predicate with a
// simulated clock.
func NewArtifactRepositoryWithClock(db *gorm.DB, now func() time.Time) ArtifactRepository {
	return &artifactRepository{db: db, now: now}
}

// active is the single masking predicate: an artifact past its expiry is
// logically gone, whether or not the reaper removed the row yet. Every read
// path goes through it.
func (r *artifactRepository) active() func(*gorm.DB) *gorm.DB {
	now := r.now()
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("expires_at > ?", now)
	}
}

func (r *artifactRepository) CreateOriginal(ctx context.Context, o *models.Original) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *artifactRepository) GetOriginal(ctx context.Context, id string) (*models.Original, error) {
	var o models.Original
	err := r.db.WithContext(ctx).Scopes(r.active()).First(&o, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *artifactRepository) ListOriginals(ctx context.Context, ownerRef *string, page, perPage int) ([]models.Original, models.Pagination, error) {
	q := r.db.WithContext(ctx).Model(&models.Original{}).Scopes(r.active())
	if ownerRef != nil {
		q = q.Where("owner_ref = ?", *ownerRef)
	} else {
		q = q.Where("owner_ref IS NULL")
	}

	var totalRecords int64
	if err := q.Count(&totalRecords).Error; err != nil {
		return nil, models.Pagination{}, err
	}

	var originals []models.Original
	offset := (page - 1) * perPage
	if err := q.Order("created_at DESC").Limit(perPage).Offset(offset).Find(&originals).Error; err != nil {
		return nil, models.Pagination{}, err
	}

	totalPages := int(math.Ceil(float64(totalRecords) / float64(perPage)))
	pagination := models.Pagination{
		CurrentPage:    page,
		RecordsPerPage: perPage,
		TotalPages:     totalPages,
		TotalRecords:   int(totalRecords),
	}
	if page < totalPages {
		next := page + 1
		pagination.Next = &next
	}
	if page > 1 {
		prev := page - 1
		pagination.Previous = &prev
	}

	return originals, pagination, nil
}

// allowedTransitions is the status machine: pending -> processing ->
// completed|failed, nothing out of a terminal state.
var allowedTransitions = map[models.Status][]models.Status{
	models.StatusPending:    {models.StatusProcessing},
	models.StatusProcessing: {models.StatusCompleted, models.StatusFailed},
}

func transitionAllowed(from, to models.Status) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// TransitionStatus is a single conditional UPDATE, not read-then-write: under
// N concurrent claimers exactly one matches the row, the rest get ErrConflict.
func (r *artifactRepository) TransitionStatus(ctx context.Context, id string, from, to models.Status) error {
	if !transitionAllowed(from, to) {
		return ErrConflict
	}
	res := r.db.WithContext(ctx).Model(&models.Original{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// CreateDerived completes the Original and inserts its Derived row in one
// transaction. Only callable from processing.
func (r *artifactRepository) CreateDerived(ctx context.Context, originalID string, d *models.Derived) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Original{}).
			Where("id = ? AND status = ?", originalID, models.StatusProcessing).
			Update("status", models.StatusCompleted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		d.OriginalID = originalID
		return tx.Create(d).Error
	})
}

func (r *artifactRepository) MarkFailed(ctx context.Context, id, category, reason string) error {
	res := r.db.WithContext(ctx).Model(&models.Original{}).
		Where("id = ? AND status = ?", id, models.StatusProcessing).
		Updates(map[string]interface{}{
			"status":           models.StatusFailed,
			"failure_category": category,
			"failure_reason":   reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *artifactRepository) GetDerivedByToken(ctx context.Context, token string) (*models.Derived, error) {
	var d models.Derived
	err := r.db.WithContext(ctx).Scopes(r.active()).First(&d, "download_token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *artifactRepository) GetDerivedForOriginal(ctx context.Context, originalID string) (*models.Derived, error) {
	var d models.Derived
	err := r.db.WithContext(ctx).Scopes(r.active()).First(&d, "original_id = ?", originalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *artifactRepository) ExpiredOriginals(ctx context.Context, limit int) ([]models.Original, error) {
	var out []models.Original
	err := r.db.WithContext(ctx).
		Where("expires_at <= ?", r.now()).
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *artifactRepository) ExpiredDeriveds(ctx context.Context, limit int) ([]models.Derived, error) {
	var out []models.Derived
	err := r.db.WithContext(ctx).
		Where("expires_at <= ?", r.now()).
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *artifactRepository) DeleteOriginal(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Original{}, "id = ?", id).Error
}

func (r *artifactRepository) DeleteDerived(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Derived{}, "id = ?", id).Error
}
