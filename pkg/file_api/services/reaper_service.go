package services

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"github.com/filecrate/filecrate-api/pkg/file_api/repositories"
	"github.com/filecrate/filecrate-api/pkg/file_api/storage"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	sweepBatchSize = 500
	maxConcurrent  = 4
)

// ReaperService physically deletes expired artifacts. Reads already mask them
// via the expiry predicate, so the sweep only has to catch up; it may lag
// wall-clock expiry by up to one interval.
type ReaperService struct {
	repo  repositories.ArtifactRepository
	store storage.BlobStore
}

func NewReaperService(repo repositories.ArtifactRepository, store storage.BlobStore) *ReaperService {
	return &ReaperService{repo: repo, store: store}
}

// Sweep removes every expired row and its blob. Per row the blob goes first;
// if that delete fails transiently the row stays for the next sweep, so an
// unreachable blob can never outlive its row unnoticed. A clean state sweeps
// to zero: running it again is a no-op.
func (s *ReaperService) Sweep(ctx context.Context) (int, error) {
	originals, err := s.repo.ExpiredOriginals(ctx, sweepBatchSize)
	if err != nil {
		return 0, err
	}
	deriveds, err := s.repo.ExpiredDeriveds(ctx, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	sem := semaphore.NewWeighted(maxConcurrent)
	g, gctx := errgroup.WithContext(ctx)
	var reaped int64

	for _, d := range deriveds {
		derived := d
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if s.reapRow(gctx, derived.StorageRef, func() error {
				return s.repo.DeleteDerived(gctx, derived.Id)
			}) {
				atomic.AddInt64(&reaped, 1)
			}
			return nil
		})
	}

	for _, o := range originals {
		original := o
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if s.reapRow(gctx, original.StorageRef, func() error {
				return s.repo.DeleteOriginal(gctx, original.Id)
			}) {
				atomic.AddInt64(&reaped, 1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(atomic.LoadInt64(&reaped)), err
	}
	return int(atomic.LoadInt64(&reaped)), nil
}

// reapRow deletes one blob-then-row pair. A missing blob counts as already
// deleted; any other store error leaves the row intact for retry. One bad row
// never aborts the sweep.
func (s *ReaperService) reapRow(ctx context.Context, ref string, deleteRow func() error) bool {
	if err := s.store.Delete(ctx, ref); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Printf("[reaper] blob delete failed for %s, keeping row: %v", ref, err)
		return false
	}
	if err := deleteRow(); err != nil {
		log.Printf("[reaper] row delete failed for %s: %v", ref, err)
		return false
	}
	return true
}
