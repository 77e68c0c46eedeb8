package handler

import (
	"bytes"
	"io"
	"mime/multipart"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/tutor-materials-api/internal/middleware"
	"github.com/noah-isme/tutor-materials-api/internal/models"
	"github.com/noah-isme/tutor-materials-api/internal/service"
	appErrors "github.com/noah-isme/tutor-materials-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// principalFromContext returns the acting principal or false when the request is anonymous.
func principalFromContext(c *gin.Context) (models.Principal, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		return models.Principal{}, false
	}
	return claims.Principal(), true
}

func validatePayload(v *validator.Validate, payload interface{}) error {
	if err := v.Struct(payload); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	return nil
}

// formUpload opens the named multipart file. It returns nil without error when the field is
// absent and required is false.
func formUpload(c *gin.Context, field string, required bool) (*service.FileUpload, func(), error) {
	noop := func() {}
	fileHeader, err := c.FormFile(field)
	if err != nil {
		if !required {
			return nil, noop, nil
		}
		return nil, noop, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	src, err := fileHeader.Open()
	if err != nil {
		return nil, noop, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	reader, err := seekable(src)
	if err != nil {
		_ = src.Close()
		return nil, noop, err
	}
	upload := &service.FileUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Content:  reader,
	}
	return upload, func() { _ = src.Close() }, nil
}

func seekable(src multipart.File) (io.ReadSeeker, error) {
	if reader, ok := src.(io.ReadSeeker); ok {
		return reader, nil
	}
	buf, err := io.ReadAll(src)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer file")
	}
	return bytes.NewReader(buf), nil
}
