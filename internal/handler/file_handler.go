package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-materials-api/internal/models"
	"github.com/noah-isme/tutor-materials-api/internal/repository"
	appErrors "github.com/noah-isme/tutor-materials-api/pkg/errors"
	"github.com/noah-isme/tutor-materials-api/pkg/response"
)

type downloadVerifier interface {
	Verify(blobID, token string) (time.Time, error)
}

type blobLookup interface {
	FindBlob(ctx context.Context, blobID string) (*models.BlobRef, error)
}

type blobOpener interface {
	Open(ref models.BlobRef) (*os.File, error)
}

// FileHandler streams stored blobs to holders of a valid signed token.
type FileHandler struct {
	verifier downloadVerifier
	lookup   blobLookup
	opener   blobOpener
	logger   *zap.Logger
}

// NewFileHandler constructs the handler.
func NewFileHandler(verifier downloadVerifier, lookup blobLookup, opener blobOpener, logger *zap.Logger) *FileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileHandler{verifier: verifier, lookup: lookup, opener: opener, logger: logger}
}

// Serve godoc
// @Summary Download a stored file using a signed token
// @Tags Files
// @Produce octet-stream
// @Param blobId path string true "Blob ID"
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /files/{blobId} [get]
func (h *FileHandler) Serve(c *gin.Context) {
	blobID := c.Param("blobId")
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download token required"))
		return
	}
	if _, err := h.verifier.Verify(blobID, token); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"))
		return
	}

	ref, err := h.lookup.FindBlob(c.Request.Context(), blobID)
	if err != nil {
		if repository.IsNotFound(err) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file not found"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve file"))
		return
	}

	file, err := h.opener.Open(*ref)
	if err != nil {
		h.logger.Warn("blob missing from storage", zap.String("blob_id", blobID), zap.Error(err))
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file not found"))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat file"))
		return
	}
	mimeType := ref.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	c.Header("Cache-Control", "private, no-store")
	c.DataFromReader(http.StatusOK, info.Size(), mimeType, file, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", ref.OriginalName),
	})
}
