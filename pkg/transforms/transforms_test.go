package transforms_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/filecrate/filecrate-api/pkg/file_api/models"
	"github.com/filecrate/filecrate-api/pkg/file_api/testutil"
	"github.com/filecrate/filecrate-api/pkg/transforms"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SupportsOnlyRegisteredKinds(t *testing.T) {
	registry := transforms.NewRegistry()
	registry.Register(models.ToolCompress, transforms.NewCompressor())

	assert.True(t, registry.Supports(models.ToolCompress, "text/plain"))
	assert.False(t, registry.Supports(models.ToolPdfToWord, "application/pdf"))

	_, ok := registry.Lookup(models.ToolSplit)
	assert.False(t, ok)
}

func TestCompressor_RoundTrip(t *testing.T) {
	input := bytes.Repeat([]byte("filecrate "), 200)

	result, err := transforms.NewCompressor().Transform(context.Background(), transforms.Request{
		DisplayName: "notes.txt",
		MimeType:    "text/plain",
		Data:        input,
	})
	require.NoError(t, err)
	assert.Equal(t, "notes.txt.gz", result.DisplayName)
	assert.Equal(t, "application/gzip", result.MimeType)
	assert.Less(t, len(result.Data), len(input))

	zr, err := gzip.NewReader(bytes.NewReader(result.Data))
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestCompressor_RejectsBadOptions(t *testing.T) {
	_, err := transforms.NewCompressor().Transform(context.Background(), transforms.Request{
		DisplayName: "notes.txt",
		Options:     []byte(`{"level": 99}`),
		Data:        []byte("x"),
	})
	assert.ErrorIs(t, err, transforms.ErrUnsupportedInput)
}

func TestSplitter_ProducesParts(t *testing.T) {
	input := bytes.Repeat([]byte("a"), 2500)

	result, err := transforms.NewSplitter().Transform(context.Background(), transforms.Request{
		DisplayName: "dump.bin",
		Options:     []byte(`{"chunkBytes": 1000}`),
		Data:        input,
	})
	require.NoError(t, err)
	assert.Equal(t, "dump.bin-split.zip", result.DisplayName)

	zr, err := zip.NewReader(bytes.NewReader(result.Data), int64(len(result.Data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)
	assert.Equal(t, "dump.bin.part01", zr.File[0].Name)

	total := 0
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		total += len(data)
	}
	assert.Equal(t, len(input), total)
}

func TestSplitter_RejectsEmptyInput(t *testing.T) {
	_, err := transforms.NewSplitter().Transform(context.Background(), transforms.Request{
		DisplayName: "empty.bin",
	})
	assert.ErrorIs(t, err, transforms.ErrUnsupportedInput)
}

func TestRemoteConverter_MapsStatuses(t *testing.T) {
	srv := testutil.NewTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/convert/pdf-to-word":
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
			w.Write(append([]byte("docx:"), body...))
		default:
			w.WriteHeader(http.StatusUnsupportedMediaType)
		}
	}))

	conv := transforms.NewRemoteConverter(srv.URL, models.ToolPdfToWord, []string{"application/pdf"}, ".docx", "application/word")
	assert.True(t, conv.Accepts("application/pdf"))
	assert.False(t, conv.Accepts("text/plain"))

	result, err := conv.Transform(context.Background(), transforms.Request{
		DisplayName: "report.pdf",
		MimeType:    "application/pdf",
		Data:        []byte("%PDF"),
	})
	require.NoError(t, err)
	assert.Equal(t, "report.docx", result.DisplayName)
	assert.Equal(t, []byte("docx:%PDF"), result.Data)

	rejected := transforms.NewRemoteConverter(srv.URL, models.ToolPdfToExcel, []string{"application/pdf"}, ".xlsx", "application/excel")
	_, err = rejected.Transform(context.Background(), transforms.Request{
		DisplayName: "report.pdf",
		MimeType:    "application/pdf",
		Data:        []byte("%PDF"),
	})
	assert.ErrorIs(t, err, transforms.ErrUnsupportedInput)
}
