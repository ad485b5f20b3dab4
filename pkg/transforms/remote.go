package transforms

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/filecrate/filecrate-api/pkg/file_api/models"
)

// RemoteConverter proxies a conversion kind to an external converter service.
// The service does the byte-level work; this client only carries the
// pipeline's contract: bytes in, bytes or a reported failure out.
type RemoteConverter struct {
	client      *http.Client
	baseURL     string
	kind        models.ToolKind
	acceptMimes []string
	outExt      string
	outMime     string
}

func NewRemoteConverter(baseURL string, kind models.ToolKind, acceptMimes []string, outExt, outMime string) *RemoteConverter {
	return &RemoteConverter{
		client:      &http.Client{Timeout: 2 * time.Minute},
		baseURL:     strings.TrimRight(baseURL, "/"),
		kind:        kind,
		acceptMimes: acceptMimes,
		outExt:      outExt,
		outMime:     outMime,
	}
}

func (r *RemoteConverter) Accepts(mimeType string) bool {
	for _, m := range r.acceptMimes {
		if m == mimeType {
			return true
		}
	}
	return false
}

func (r *RemoteConverter) Transform(ctx context.Context, req Request) (*Result, error) {
	u := fmt.Sprintf("%s/convert/%s", r.baseURL, r.kind)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(req.Data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", req.MimeType)
	if len(req.Options) > 0 {
		httpReq.Header.Set("X-Convert-Options", string(req.Options))
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: converter rejected %s input", ErrUnsupportedInput, req.MimeType)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("converter returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Result{
		Data:        data,
		DisplayName: replaceExt(req.DisplayName, r.outExt),
		MimeType:    r.outMime,
	}, nil
}

func replaceExt(name, ext string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name + ext
}
