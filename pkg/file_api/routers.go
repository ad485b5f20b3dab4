package file_api

import (
	"github.com/filecrate/filecrate-api/pkg/file_api/handler"
	"github.com/filecrate/filecrate-api/pkg/file_api/middleware"
	"github.com/gin-gonic/gin"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/wI2L/fizz"
	"github.com/wI2L/fizz/openapi"
)

var (
	apiVersionHeader = fizz.Header(
		"API-Version",
		"De API-versie van de response",
		"", // lege string betekent: primitive string in de spec
	)

	notFoundResponse = fizz.Response(
		"404",
		"Not Found",
		nil, // geen inline schema
		nil, // geen content-media-type
		nil, // geen extra headers
	)
)

func NewRouter(apiVersion string, controller *handler.FilesAPIController) *fizz.Fizz {
	g := gin.Default()
	g.Use(APIVersionMiddleware(apiVersion))
	g.Use(middleware.OwnerRef())
	f := fizz.NewFromEngine(g)

	f.Generator().SetServers([]*openapi.Server{
		{
			URL:         "https://api.filecrate.io/v1",
			Description: "Production",
		},
	})

	info := &openapi.Info{
		Title:       "Filecrate file API v1",
		Description: "Upload a document, apply one transformation, download the result. Everything expires.",
		Version:     apiVersion,
		Contact: &openapi.Contact{
			Name:  "Team Filecrate",
			Email: "support@filecrate.io",
			URL:   "https://filecrate.io",
		},
	}

	root := f.Group("/v1", "Files v1", "Transient file pipeline routes")

	root.GET("/files",
		[]fizz.OperationOption{
			fizz.Summary("Eigen actieve uploads ophalen"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.ListFiles, 200),
	)

	root.GET("/files/:id",
		[]fizz.OperationOption{
			fizz.Summary("Status van een upload ophalen"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.RetrieveFile, 200),
	)

	// Multipart upload and the byte stream bypass tonic; they are registered
	// on the underlying engine and stay out of the generated spec.
	g.POST("/v1/files", controller.CreateFile)
	g.GET("/v1/downloads/:token", controller.DownloadDerived)

	f.GET("/v1/openapi.json", []fizz.OperationOption{}, f.OpenAPI(info, "json"))

	return f
}

type apiVersionWriter struct {
	gin.ResponseWriter
	version string
}

func (w *apiVersionWriter) WriteHeader(code int) {
	if code >= 200 && code < 300 {
		w.Header().Set("API-Version", w.version)
	}
	w.ResponseWriter.WriteHeader(code)
}

func APIVersionMiddleware(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer = &apiVersionWriter{c.Writer, version}
		c.Next()
	}
}
