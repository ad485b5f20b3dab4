package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loopfz/gadgeto/tonic"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	api "github.com/filecrate/filecrate-api/pkg/file_api"
	"github.com/filecrate/filecrate-api/pkg/file_api/database"
	"github.com/filecrate/filecrate-api/pkg/file_api/handler"
	problem "github.com/filecrate/filecrate-api/pkg/file_api/helpers/problem"
	"github.com/filecrate/filecrate-api/pkg/file_api/models"
	"github.com/filecrate/filecrate-api/pkg/file_api/repositories"
	"github.com/filecrate/filecrate-api/pkg/file_api/services"
	"github.com/filecrate/filecrate-api/pkg/file_api/storage"
	"github.com/filecrate/filecrate-api/pkg/jobs"
	"github.com/filecrate/filecrate-api/pkg/transforms"
)

const apiVersion = "1.0.0"

func init() {
	tonic.SetErrorHook(func(c *gin.Context, err error) (int, interface{}) {
		// 1) Bind errors → 400
		var be tonic.BindError
		if errors.As(err, &be) {
			apiErr := problem.NewBadRequest("body", be.Error())
			c.Header("Content-Type", "application/problem+json")
			return apiErr.Status, apiErr
		}

		// 2) Typed outcomes → pass-through / 409
		if apiErr, ok := err.(problem.APIError); ok {
			c.Header("Content-Type", "application/problem+json")
			return apiErr.Status, apiErr
		}
		if errors.Is(err, repositories.ErrConflict) {
			apiErr := problem.NewConflict("", "already processing")
			c.Header("Content-Type", "application/problem+json")
			return apiErr.Status, apiErr
		}

		// 3) Alles anders → 500
		internal := problem.NewInternalServerError(err.Error())
		c.Header("Content-Type", "application/problem+json")
		return internal.Status, internal
	})
}

func main() {
	_ = godotenv.Load()

	dbcon := "postgres://" +
		os.Getenv("DB_USERNAME") + ":" +
		os.Getenv("DB_PASSWORD") + "@" +
		os.Getenv("DB_HOSTNAME") + "/" +
		os.Getenv("DB_DBNAME") + "?search_path=" +
		os.Getenv("DB_SCHEMA")
	db, err := database.Connect(dbcon)
	if err != nil {
		log.Printf("[WARN] Geen databaseverbinding: %v", err)
		log.Println("[INFO] API wordt gestart zonder databasefunctionaliteit")
	}

	store := newBlobStore()
	registry := newTransformRegistry()

	maxUploadBytes := envInt64("MAX_UPLOAD_BYTES", 50<<20)
	retention := envDuration("RETENTION_WINDOW", time.Hour)
	derivedRetention := envDuration("DERIVED_RETENTION_WINDOW", time.Hour)
	transformTimeout := envDuration("TRANSFORM_TIMEOUT", 2*time.Minute)
	reaperInterval := envDuration("REAPER_INTERVAL", 5*time.Minute)

	artifactRepo := repositories.NewArtifactRepository(db)
	tokenService := services.NewTokenService(artifactRepo, store)
	fileService := services.NewFileService(artifactRepo, store, registry, maxUploadBytes, retention)
	invokerService := services.NewInvokerService(artifactRepo, store, registry, tokenService, transformTimeout, derivedRetention)
	reaperService := services.NewReaperService(artifactRepo, store)
	filesController := handler.NewFilesAPIController(fileService, invokerService, tokenService)
	jobs.ScheduleReaper(context.Background(), reaperService, reaperInterval)

	// Start server
	router := api.NewRouter(apiVersion, filesController)

	log.Println("Server is running on port 1337")
	log.Fatal(http.ListenAndServe(":1337", router))
}

// newBlobStore prefers the configured object store and degrades to process
// memory so local development works without infrastructure.
func newBlobStore() storage.BlobStore {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		log.Println("[WARN] MINIO_ENDPOINT niet gezet; blobs blijven in-memory")
		return storage.NewMemoryStore()
	}
	store, err := storage.NewMinioStore(
		endpoint,
		os.Getenv("MINIO_ACCESS_KEY"),
		os.Getenv("MINIO_SECRET_KEY"),
		os.Getenv("MINIO_USE_SSL") == "true",
		envString("MINIO_BUCKET", "filecrate"),
	)
	if err != nil {
		log.Printf("[WARN] object store niet bereikbaar (%v); blobs blijven in-memory", err)
		return storage.NewMemoryStore()
	}
	return store
}

// newTransformRegistry wires the in-process tools and, when a converter
// service is configured, the document conversion kinds. Kinds that are not
// registered here are rejected at upload time.
func newTransformRegistry() *transforms.Registry {
	registry := transforms.NewRegistry()
	registry.Register(models.ToolCompress, transforms.NewCompressor())
	registry.Register(models.ToolSplit, transforms.NewSplitter())

	converterURL := os.Getenv("CONVERTER_URL")
	if converterURL == "" {
		log.Println("[INFO] CONVERTER_URL niet gezet; conversie-tools niet geregistreerd")
		return registry
	}

	const (
		pdfMime  = "application/pdf"
		docxMime = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		xlsxMime = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		pptxMime = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	)
	registry.Register(models.ToolPdfToWord,
		transforms.NewRemoteConverter(converterURL, models.ToolPdfToWord, []string{pdfMime}, ".docx", docxMime))
	registry.Register(models.ToolPdfToExcel,
		transforms.NewRemoteConverter(converterURL, models.ToolPdfToExcel, []string{pdfMime}, ".xlsx", xlsxMime))
	registry.Register(models.ToolPdfToPptx,
		transforms.NewRemoteConverter(converterURL, models.ToolPdfToPptx, []string{pdfMime}, ".pptx", pptxMime))
	registry.Register(models.ToolWordToPdf,
		transforms.NewRemoteConverter(converterURL, models.ToolWordToPdf, []string{docxMime, "application/msword"}, ".pdf", pdfMime))
	return registry
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("[WARN] ongeldige waarde voor %s: %v", key, err)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[WARN] ongeldige waarde voor %s: %v", key, err)
		return fallback
	}
	return d
}
