package transforms

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

const defaultChunkBytes = 1 << 20

type splitOptions struct {
	ChunkBytes int `json:"chunkBytes"`
}

// Splitter cuts the upload into fixed-size parts and packages them as a zip
// archive. Deflate inside the container goes through klauspost/compress.
type Splitter struct{}

func NewSplitter() *Splitter { return &Splitter{} }

func (s *Splitter) Accepts(string) bool { return true }

func (s *Splitter) Transform(ctx context.Context, req Request) (*Result, error) {
	opts := splitOptions{ChunkBytes: defaultChunkBytes}
	if len(req.Options) > 0 {
		if err := json.Unmarshal(req.Options, &opts); err != nil {
			return nil, fmt.Errorf("%w: invalid options: %v", ErrUnsupportedInput, err)
		}
	}
	if opts.ChunkBytes < 1 {
		return nil, fmt.Errorf("%w: chunkBytes must be positive", ErrUnsupportedInput)
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUnsupportedInput)
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})

	base := req.DisplayName
	if base == "" {
		base = "upload"
	}
	parts := (len(req.Data) + opts.ChunkBytes - 1) / opts.ChunkBytes
	for i := 0; i < parts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lo := i * opts.ChunkBytes
		hi := lo + opts.ChunkBytes
		if hi > len(req.Data) {
			hi = len(req.Data)
		}
		w, err := zw.Create(fmt.Sprintf("%s.part%02d", base, i+1))
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(req.Data[lo:hi]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	return &Result{
		Data:        out.Bytes(),
		DisplayName: base + "-split.zip",
		MimeType:    "application/zip",
	}, nil
}
