package transforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

type compressOptions struct {
	Level int `json:"level"`
}

// Compressor gzips the uploaded bytes.
type Compressor struct{}

func NewCompressor() *Compressor { return &Compressor{} }

// Accepts takes any input; gzip is content-agnostic.
func (c *Compressor) Accepts(string) bool { return true }

func (c *Compressor) Transform(ctx context.Context, req Request) (*Result, error) {
	opts := compressOptions{Level: gzip.DefaultCompression}
	if len(req.Options) > 0 {
		if err := json.Unmarshal(req.Options, &opts); err != nil {
			return nil, fmt.Errorf("%w: invalid options: %v", ErrUnsupportedInput, err)
		}
	}
	if opts.Level < gzip.HuffmanOnly || opts.Level > gzip.BestCompression {
		return nil, fmt.Errorf("%w: compression level %d out of range", ErrUnsupportedInput, opts.Level)
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, opts.Level)
	if err != nil {
		return nil, err
	}
	zw.Name = req.DisplayName
	if _, err := zw.Write(req.Data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Result{
		Data:        buf.Bytes(),
		DisplayName: req.DisplayName + ".gz",
		MimeType:    "application/gzip",
	}, nil
}
