package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/filecrate/filecrate-api/pkg/file_api/models"
	"github.com/filecrate/filecrate-api/pkg/file_api/repositories"
	"github.com/filecrate/filecrate-api/pkg/file_api/storage"
)

// ErrInvalidToken covers every redeem failure: unknown token, expired Derived,
// missing blob. One error, so nothing about the artifact's existence leaks.
var ErrInvalidToken = errors.New("invalid or expired download token")

// tokenBytes gives 256 bits of entropy, well past the 128-bit floor. Tokens
// are unrelated to row ids, so they cannot be enumerated.
const tokenBytes = 32

// maxTokenLen bounds what we even look up; anything longer is garbage.
const maxTokenLen = 128

// TokenService mints and redeems the opaque credentials that gate access to
// Derived artifacts. Redemption is non-destructive: a valid token keeps
// working until its Derived expires.
type TokenService struct {
	repo  repositories.ArtifactRepository
	store storage.BlobStore
}

func NewTokenService(repo repositories.ArtifactRepository, store storage.BlobStore) *TokenService {
	return &TokenService{repo: repo, store: store}
}

// Issue mints a fresh token. Called exactly once per Derived, at creation.
func (s *TokenService) Issue() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Redeem resolves a token to its Derived record and blob. Expired rows are
// masked by the repository's read predicate; a row whose blob is already gone
// is just as invalid.
func (s *TokenService) Redeem(ctx context.Context, token string) (*models.Derived, *storage.Blob, error) {
	if token == "" || len(token) > maxTokenLen {
		return nil, nil, ErrInvalidToken
	}

	d, err := s.repo.GetDerivedByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if d == nil {
		return nil, nil, ErrInvalidToken
	}

	blob, err := s.store.Get(ctx, d.StorageRef)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrInvalidToken
	}
	if err != nil {
		return nil, nil, err
	}
	return d, blob, nil
}
