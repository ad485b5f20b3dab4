package services

import (
	"context"
	"fmt"
	"log"
	"time"

	problem "github.com/filecrate/filecrate-api/pkg/file_api/helpers/problem"
	"github.com/filecrate/filecrate-api/pkg/file_api/models"
	"github.com/filecrate/filecrate-api/pkg/file_api/repositories"
	"github.com/filecrate/filecrate-api/pkg/file_api/storage"
	"github.com/filecrate/filecrate-api/pkg/transforms"
	"github.com/teris-io/shortid"
)

// FileService is the registry's front: it validates uploads, creates Original
// rows and serves the masked read paths.
type FileService struct {
	repo           repositories.ArtifactRepository
	store          storage.BlobStore
	registry       *transforms.Registry
	maxUploadBytes int64
	retention      time.Duration
	now            func() time.Time
}

func NewFileService(repo repositories.ArtifactRepository, store storage.BlobStore, registry *transforms.Registry, maxUploadBytes int64, retention time.Duration) *FileService {
	return &FileService{
		repo:           repo,
		store:          store,
		registry:       registry,
		maxUploadBytes: maxUploadBytes,
		retention:      retention,
		now:            time.Now,
	}
}

// WithClock overrides the service clock; tests drive expiry with it.
func (s *FileService) WithClock(now func() time.Time) *FileService {
	s.now = now
	return s
}

// UploadInput is the validated upload payload.
type UploadInput struct {
	DisplayName string
	MimeType    string
	ToolKind    models.ToolKind
	Options     string
	Data        []byte
	OwnerRef    *string
}

// CreateOriginal validates the upload, stores the blob and inserts the row
// with status pending. ExpiresAt is fixed here and never extended.
func (s *FileService) CreateOriginal(ctx context.Context, in UploadInput) (*models.Original, error) {
	if len(in.Data) == 0 {
		return nil, problem.NewBadRequest("file", "uploaded file is empty",
			problem.InvalidParam{Name: "file", Reason: "must not be empty"})
	}
	if int64(len(in.Data)) > s.maxUploadBytes {
		return nil, problem.NewBadRequest("file",
			fmt.Sprintf("uploaded file exceeds the maximum of %d bytes", s.maxUploadBytes),
			problem.InvalidParam{Name: "file", Reason: "too large"})
	}
	if !s.registry.Supports(in.ToolKind, in.MimeType) {
		return nil, problem.NewBadRequest("toolKind",
			fmt.Sprintf("tool %q does not accept %q input", in.ToolKind, in.MimeType),
			problem.InvalidParam{Name: "toolKind", Reason: "unsupported tool/mimeType combination"})
	}

	ref, err := s.store.Put(ctx, in.DisplayName, in.MimeType, in.Data)
	if err != nil {
		return nil, problem.NewInternalServerError("could not store upload")
	}

	now := s.now()
	original := &models.Original{
		Id:          shortid.MustGenerate(),
		OwnerRef:    in.OwnerRef,
		DisplayName: in.DisplayName,
		ByteSize:    int64(len(in.Data)),
		MimeType:    in.MimeType,
		ToolKind:    in.ToolKind,
		Options:     in.Options,
		Status:      models.StatusPending,
		StorageRef:  ref,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.retention),
	}
	if err := s.repo.CreateOriginal(ctx, original); err != nil {
		// Half-written upload: drop the blob again so nothing orphans.
		if delErr := s.store.Delete(ctx, ref); delErr != nil {
			log.Printf("[files] could not roll back blob %s: %v", ref, delErr)
		}
		return nil, problem.NewInternalServerError("could not register upload")
	}
	return original, nil
}

// RetrieveFile returns the status view, or nil when the id is absent or
// expired (the handler maps nil to 404).
func (s *FileService) RetrieveFile(ctx context.Context, id string) (*models.FileDetail, error) {
	original, err := s.repo.GetOriginal(ctx, id)
	if err != nil || original == nil {
		return nil, err
	}

	detail := &models.FileDetail{
		FileSummary:     toFileSummary(original),
		FailureCategory: original.FailureCategory,
	}
	if original.Status == models.StatusCompleted {
		derived, err := s.repo.GetDerivedForOriginal(ctx, original.Id)
		if err != nil {
			return nil, err
		}
		// Derived may have expired ahead of its Original; then there is
		// simply nothing left to offer.
		if derived != nil {
			detail.Derived = &models.DerivedView{
				DisplayName:   derived.DisplayName,
				ByteSize:      derived.ByteSize,
				MimeType:      derived.MimeType,
				DownloadToken: derived.DownloadToken,
				ExpiresAt:     derived.ExpiresAt,
			}
		}
	}
	return detail, nil
}

// ListFiles returns the caller's active uploads.
func (s *FileService) ListFiles(ctx context.Context, p *models.ListFilesParams, ownerRef *string) ([]models.FileSummary, models.Pagination, error) {
	originals, pagination, err := s.repo.ListOriginals(ctx, ownerRef, p.Page, p.PerPage)
	if err != nil {
		return nil, models.Pagination{}, err
	}

	dtos := make([]models.FileSummary, len(originals))
	for i, o := range originals {
		dtos[i] = toFileSummary(&o)
	}
	return dtos, pagination, nil
}

func toFileSummary(o *models.Original) models.FileSummary {
	return models.FileSummary{
		Id:          o.Id,
		DisplayName: o.DisplayName,
		ByteSize:    o.ByteSize,
		MimeType:    o.MimeType,
		ToolKind:    o.ToolKind,
		Status:      o.Status,
		CreatedAt:   o.CreatedAt,
		ExpiresAt:   o.ExpiresAt,
		Links: &models.Links{
			Self: &models.Link{Href: fmt.Sprintf("/v1/files/%s", o.Id)},
		},
	}
}
