package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	problem "github.com/filecrate/filecrate-api/pkg/file_api/helpers/problem"
	"github.com/filecrate/filecrate-api/pkg/file_api/helpers/util"
	"github.com/filecrate/filecrate-api/pkg/file_api/middleware"
	"github.com/filecrate/filecrate-api/pkg/file_api/models"
	"github.com/filecrate/filecrate-api/pkg/file_api/services"
	"github.com/filecrate/filecrate-api/pkg/tools"
	"github.com/gin-gonic/gin"
)

// FilesAPIController binds HTTP requests to the pipeline services.
type FilesAPIController struct {
	Service *services.FileService
	Invoker *services.InvokerService
	Tokens  *services.TokenService
}

// NewFilesAPIController creates a new controller
func NewFilesAPIController(s *services.FileService, inv *services.InvokerService, tokens *services.TokenService) *FilesAPIController {
	return &FilesAPIController{Service: s, Invoker: inv, Tokens: tokens}
}

// CreateFile handles POST /files: multipart upload plus toolKind selector.
// The transform run is dispatched after the 201 goes out; the client polls
// the status endpoint.
func (c *FilesAPIController) CreateFile(ctx *gin.Context) {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		writeProblem(ctx, problem.NewBadRequest("file", "missing file field",
			problem.InvalidParam{Name: "file", Reason: "is required"}))
		return
	}
	toolKind := models.ToolKind(ctx.PostForm("toolKind"))
	if toolKind == "" {
		writeProblem(ctx, problem.NewBadRequest("toolKind", "missing toolKind field",
			problem.InvalidParam{Name: "toolKind", Reason: "is required"}))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		writeProblem(ctx, problem.NewInternalServerError("could not read upload"))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeProblem(ctx, problem.NewInternalServerError("could not read upload"))
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(fileHeader.Filename))
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	original, err := c.Service.CreateOriginal(ctx.Request.Context(), services.UploadInput{
		DisplayName: filepath.Base(fileHeader.Filename),
		MimeType:    mimeType,
		ToolKind:    toolKind,
		Options:     ctx.PostForm("options"),
		Data:        data,
		OwnerRef:    middleware.Owner(ctx),
	})
	if err != nil {
		writeProblem(ctx, err)
		return
	}

	tools.Dispatch(context.Background(), "transform", func(runCtx context.Context) error {
		return c.Invoker.Run(runCtx, original.Id)
	})

	ctx.JSON(http.StatusCreated, models.FileSummary{
		Id:          original.Id,
		DisplayName: original.DisplayName,
		ByteSize:    original.ByteSize,
		MimeType:    original.MimeType,
		ToolKind:    original.ToolKind,
		Status:      original.Status,
		CreatedAt:   original.CreatedAt,
		ExpiresAt:   original.ExpiresAt,
		Links: &models.Links{
			Self: &models.Link{Href: fmt.Sprintf("/v1/files/%s", original.Id)},
		},
	})
}

// RetrieveFile handles GET /files/:id
func (c *FilesAPIController) RetrieveFile(ctx *gin.Context, params *models.FileParams) (*models.FileDetail, error) {
	detail, err := c.Service.RetrieveFile(ctx.Request.Context(), params.Id)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		// Absent and expired are the same 404.
		return nil, problem.NewNotFound(params.Id, "File not found")
	}
	return detail, nil
}

// ListFiles handles GET /files
func (c *FilesAPIController) ListFiles(ctx *gin.Context, p *models.ListFilesParams) ([]models.FileSummary, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 10
	}
	p.BaseURL = ctx.FullPath()
	files, pagination, err := c.Service.ListFiles(ctx.Request.Context(), p, middleware.Owner(ctx))
	if err != nil {
		return nil, err
	}
	util.SetPaginationHeaders(ctx.Request, ctx.Header, pagination)

	return files, nil
}

// DownloadDerived handles GET /downloads/:token. Redemption is
// non-destructive: the same token works until the Derived expires.
func (c *FilesAPIController) DownloadDerived(ctx *gin.Context) {
	token := ctx.Param("token")

	derived, blob, err := c.Tokens.Redeem(ctx.Request.Context(), token)
	if errors.Is(err, services.ErrInvalidToken) {
		// Never echo the token back.
		writeProblem(ctx, problem.NewNotFound("token", "download link is invalid or expired"))
		return
	}
	if err != nil {
		writeProblem(ctx, problem.NewInternalServerError("could not serve download"))
		return
	}

	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", derived.DisplayName))
	ctx.Data(http.StatusOK, derived.MimeType, blob.Data)
}

// writeProblem renders err as an RFC 7807 response for the raw gin handlers
// that bypass the tonic error hook.
func writeProblem(ctx *gin.Context, err error) {
	var apiErr problem.APIError
	if !errors.As(err, &apiErr) {
		apiErr = problem.NewInternalServerError(err.Error())
	}
	ctx.Header("Content-Type", "application/problem+json")
	ctx.AbortWithStatusJSON(apiErr.Status, apiErr)
}
