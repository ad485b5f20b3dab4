package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/filecrate/filecrate-api/pkg/file_api/models"
	"github.com/filecrate/filecrate-api/pkg/file_api/repositories"
	"github.com/filecrate/filecrate-api/pkg/file_api/storage"
	"github.com/filecrate/filecrate-api/pkg/transforms"
	"github.com/google/uuid"
)

// InvokerService drives an Original through its status machine: it claims the
// row, runs the registered transform under a wall-clock budget and records the
// outcome. It never retries a transform; a retry is a fresh upload.
type InvokerService struct {
	repo             repositories.ArtifactRepository
	store            storage.BlobStore
	registry         *transforms.Registry
	tokens           *TokenService
	timeout          time.Duration
	derivedRetention time.Duration
	now              func() time.Time
}

func NewInvokerService(repo repositories.ArtifactRepository, store storage.BlobStore, registry *transforms.Registry, tokens *TokenService, timeout, derivedRetention time.Duration) *InvokerService {
	return &InvokerService{
		repo:             repo,
		store:            store,
		registry:         registry,
		tokens:           tokens,
		timeout:          timeout,
		derivedRetention: derivedRetention,
		now:              time.Now,
	}
}

// WithClock overrides the service clock; tests drive expiry with it.
func (s *InvokerService) WithClock(now func() time.Time) *InvokerService {
	s.now = now
	return s
}

// Run processes one Original. A Conflict on the pending->processing claim
// means another invocation owns it; the loser returns without touching the
// blob store.
func (s *InvokerService) Run(ctx context.Context, originalID string) error {
	original, err := s.repo.GetOriginal(ctx, originalID)
	if err != nil {
		return err
	}
	if original == nil {
		// Absent or already expired; nothing to do, the reaper owns it now.
		return nil
	}

	if err := s.repo.TransitionStatus(ctx, originalID, models.StatusPending, models.StatusProcessing); err != nil {
		return err
	}

	transformer, ok := s.registry.Lookup(original.ToolKind)
	if !ok {
		// Cannot happen for rows that passed upload validation; record it
		// rather than leaving the row stuck in processing.
		return s.fail(ctx, originalID, models.FailureInternal, "no transformer registered for "+string(original.ToolKind))
	}

	blob, err := s.store.Get(ctx, original.StorageRef)
	if err != nil {
		return s.fail(ctx, originalID, models.FailureInternal, "could not read original blob: "+err.Error())
	}

	result, runErr := s.invoke(ctx, transformer, transforms.Request{
		DisplayName: original.DisplayName,
		MimeType:    original.MimeType,
		Options:     json.RawMessage(original.Options),
		Data:        blob.Data,
	})
	if runErr != nil {
		category := models.FailureInternal
		switch {
		case errors.Is(runErr, context.DeadlineExceeded):
			category = models.FailureTimeout
		case errors.Is(runErr, transforms.ErrUnsupportedInput):
			category = models.FailureUnsupportedInput
		}
		return s.fail(ctx, originalID, category, runErr.Error())
	}

	ref, err := s.store.Put(ctx, result.DisplayName, result.MimeType, result.Data)
	if err != nil {
		return s.fail(ctx, originalID, models.FailureInternal, "could not store derived blob: "+err.Error())
	}

	token, err := s.tokens.Issue()
	if err != nil {
		s.discard(ctx, ref)
		return s.fail(ctx, originalID, models.FailureInternal, "could not mint download token")
	}

	now := s.now()
	derived := &models.Derived{
		Id:            uuid.New().String(),
		StorageRef:    ref,
		ByteSize:      int64(len(result.Data)),
		DisplayName:   result.DisplayName,
		MimeType:      result.MimeType,
		DownloadToken: token,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.derivedRetention),
	}
	if err := s.repo.CreateDerived(ctx, originalID, derived); err != nil {
		// Lost the completion race or the row vanished; the derived blob must
		// not orphan.
		s.discard(ctx, ref)
		return err
	}
	return nil
}

// invoke runs the transform with a bounded wall-clock budget. The transform
// runs in its own goroutine so a stuck implementation cannot block the
// invoker past the deadline.
func (s *InvokerService) invoke(ctx context.Context, t transforms.Transformer, req transforms.Request) (*transforms.Result, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type outcome struct {
		result *transforms.Result
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		result, err := t.Transform(cctx, req)
		ch <- outcome{result, err}
	}()

	select {
	case <-cctx.Done():
		return nil, cctx.Err()
	case o := <-ch:
		if o.err != nil {
			return nil, o.err
		}
		return o.result, nil
	}
}

func (s *InvokerService) fail(ctx context.Context, id, category, reason string) error {
	log.Printf("[invoker] %s failed (%s): %s", id, category, reason)
	if err := s.repo.MarkFailed(ctx, id, category, reason); err != nil {
		return err
	}
	return nil
}

func (s *InvokerService) discard(ctx context.Context, ref string) {
	if err := s.store.Delete(ctx, ref); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Printf("[invoker] could not discard blob %s: %v", ref, err)
	}
}
