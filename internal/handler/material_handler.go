package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/tutor-materials-api/internal/dto"
	"github.com/noah-isme/tutor-materials-api/internal/middleware"
	"github.com/noah-isme/tutor-materials-api/internal/models"
	"github.com/noah-isme/tutor-materials-api/internal/service"
	appErrors "github.com/noah-isme/tutor-materials-api/pkg/errors"
	"github.com/noah-isme/tutor-materials-api/pkg/response"
)

type materialService interface {
	ListMaterials(ctx context.Context, actor models.Principal, programID string, category models.MaterialCategory) ([]models.Material, error)
	GetMaterial(ctx context.Context, actor models.Principal, materialID string) (*models.Material, error)
	UploadMaterial(ctx context.Context, actor models.Principal, input service.UploadMaterialInput) (*models.Material, error)
	UpdateMaterial(ctx context.Context, actor models.Principal, materialID string, patch models.MaterialPatch, file *service.FileUpload) (*models.Material, error)
	DeleteMaterial(ctx context.Context, actor models.Principal, materialID string, confirmed bool) (*models.DeletedMaterial, error)
	MaterialDownload(ctx context.Context, actor models.Principal, materialID string) (*service.DownloadLink, error)
}

// MaterialHandler exposes material catalog endpoints.
type MaterialHandler struct {
	service  materialService
	validate *validator.Validate
}

// NewMaterialHandler constructs the handler.
func NewMaterialHandler(svc materialService, validate *validator.Validate) *MaterialHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &MaterialHandler{service: svc, validate: validate}
}

// List godoc
// @Summary List program materials
// @Tags Materials
// @Produce json
// @Param programId path string true "Program ID"
// @Param category query string false "assignments, videos or documents"
// @Success 200 {object} response.Envelope
// @Router /programs/{programId}/materials [get]
func (h *MaterialHandler) List(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	category := models.MaterialCategory(strings.ToLower(strings.TrimSpace(c.Query("category"))))
	items, err := h.service.ListMaterials(c.Request.Context(), actor, c.Param("programId"), category)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(items))
	response.JSON(c, http.StatusOK, items, middleware.ExtractMeta(c))
}

// Upload godoc
// @Summary Publish a material
// @Tags Materials
// @Accept multipart/form-data
// @Produce json
// @Param programId path string true "Program ID"
// @Param type formData string true "Material type"
// @Param title formData string true "Title"
// @Param description formData string false "Description"
// @Param is_required formData bool false "Required"
// @Param sort_order formData int false "Sort order"
// @Param due_at formData string false "Due date (RFC3339)"
// @Param total_points formData int false "Total points"
// @Param allow_late formData bool false "Accept late submissions"
// @Param file formData file true "Material file"
// @Success 201 {object} response.Envelope
// @Router /programs/{programId}/materials [post]
func (h *MaterialHandler) Upload(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var form dto.UploadMaterialForm
	if err := c.ShouldBind(&form); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid material payload"))
		return
	}
	if err := validatePayload(h.validate, form); err != nil {
		response.Error(c, err)
		return
	}
	upload, closeFile, err := formUpload(c, "file", true)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeFile()

	material, err := h.service.UploadMaterial(c.Request.Context(), actor, service.UploadMaterialInput{
		ProgramID:   c.Param("programId"),
		Type:        models.MaterialType(form.Type),
		Title:       form.Title,
		Description: form.Description,
		IsRequired:  form.IsRequired,
		SortOrder:   form.SortOrder,
		Assignment:  form.Assignment(),
		File:        *upload,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, material)
}

// Get godoc
// @Summary Get a material
// @Tags Materials
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Router /materials/{id} [get]
func (h *MaterialHandler) Get(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	material, err := h.service.GetMaterial(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, material)
}

// Update godoc
// @Summary Edit material metadata or replace its file
// @Tags Materials
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Material ID"
// @Param title formData string false "Title"
// @Param description formData string false "Description"
// @Param is_required formData bool false "Required"
// @Param sort_order formData int false "Sort order"
// @Param file formData file false "Replacement file"
// @Success 200 {object} response.Envelope
// @Router /materials/{id} [patch]
func (h *MaterialHandler) Update(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var form dto.UpdateMaterialForm
	if err := c.ShouldBind(&form); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid material payload"))
		return
	}
	if err := validatePayload(h.validate, form); err != nil {
		response.Error(c, err)
		return
	}
	var upload *service.FileUpload
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, closeFile, err := formUpload(c, "file", false)
		if err != nil {
			response.Error(c, err)
			return
		}
		defer closeFile()
		upload = file
	}
	material, err := h.service.UpdateMaterial(c.Request.Context(), actor, c.Param("id"), form.Patch(), upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, material)
}

// Delete godoc
// @Summary Delete a material with all submissions and grades
// @Description Irreversible. Requires confirm=true.
// @Tags Materials
// @Produce json
// @Param id path string true "Material ID"
// @Param confirm query bool true "Confirm irreversible deletion"
// @Success 200 {object} response.Envelope
// @Router /materials/{id} [delete]
func (h *MaterialHandler) Delete(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DeleteMaterialRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "confirm must be a boolean"))
		return
	}
	report, err := h.service.DeleteMaterial(c.Request.Context(), actor, c.Param("id"), req.Confirm)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// Download godoc
// @Summary Get a signed download link for the material file
// @Tags Materials
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Router /materials/{id}/download [get]
func (h *MaterialHandler) Download(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	link, err := h.service.MaterialDownload(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link)
}
