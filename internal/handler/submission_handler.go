package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/tutor-materials-api/internal/dto"
	"github.com/noah-isme/tutor-materials-api/internal/middleware"
	"github.com/noah-isme/tutor-materials-api/internal/models"
	"github.com/noah-isme/tutor-materials-api/internal/service"
	appErrors "github.com/noah-isme/tutor-materials-api/pkg/errors"
	"github.com/noah-isme/tutor-materials-api/pkg/response"
)

type submissionService interface {
	SubmitAssignment(ctx context.Context, actor models.Principal, materialID string, file service.FileUpload) (*models.Submission, error)
	MySubmission(ctx context.Context, actor models.Principal, materialID string) (*models.Submission, error)
	ListSubmissions(ctx context.Context, actor models.Principal, materialID string) ([]models.Submission, error)
	SubmissionSummary(ctx context.Context, actor models.Principal, materialID string) (*models.SubmissionSummary, error)
	SubmissionDownload(ctx context.Context, actor models.Principal, submissionID string) (*service.DownloadLink, error)
	GradeSubmission(ctx context.Context, actor models.Principal, input service.GradeInput) (*models.Grade, error)
	QuickGrade(ctx context.Context, actor models.Principal, submissionID string, percent float64) (*models.Grade, error)
	GetGrade(ctx context.Context, actor models.Principal, submissionID string) (*models.Grade, error)
}

// SubmissionHandler exposes submission and grading endpoints.
type SubmissionHandler struct {
	service  submissionService
	validate *validator.Validate
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(svc submissionService, validate *validator.Validate) *SubmissionHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &SubmissionHandler{service: svc, validate: validate}
}

// Submit godoc
// @Summary Submit or resubmit an assignment
// @Tags Submissions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Material ID"
// @Param file formData file true "Submission file"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /materials/{id}/submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	upload, closeFile, err := formUpload(c, "file", true)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer closeFile()

	sub, err := h.service.SubmitAssignment(c.Request.Context(), actor, c.Param("id"), *upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sub)
}

// Mine godoc
// @Summary Get the caller's submission for a material
// @Tags Submissions
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Router /materials/{id}/submissions/me [get]
func (h *SubmissionHandler) Mine(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	sub, err := h.service.MySubmission(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub)
}

// List godoc
// @Summary List submissions of a material
// @Tags Submissions
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Router /materials/{id}/submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	subs, err := h.service.ListSubmissions(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(subs))
	response.JSON(c, http.StatusOK, subs, middleware.ExtractMeta(c))
}

// Summary godoc
// @Summary Submission and grading counters of a material
// @Tags Submissions
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Router /materials/{id}/submissions/summary [get]
func (h *SubmissionHandler) Summary(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.service.SubmissionSummary(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// Download godoc
// @Summary Get a signed download link for a submission file
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/download [get]
func (h *SubmissionHandler) Download(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	link, err := h.service.SubmissionDownload(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link)
}

// Grade godoc
// @Summary Grade a submission
// @Tags Grading
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.GradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/grade [put]
func (h *SubmissionHandler) Grade(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid grade payload"))
		return
	}
	if err := validatePayload(h.validate, req); err != nil {
		response.Error(c, err)
		return
	}
	grade, err := h.service.GradeSubmission(c.Request.Context(), actor, service.GradeInput{
		SubmissionID: c.Param("id"),
		Score:        *req.Score,
		Feedback:     req.Feedback,
		IsDraft:      req.IsDraft,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade)
}

// QuickGrade godoc
// @Summary Grade a submission by percentage
// @Tags Grading
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.QuickGradeRequest true "Percent of total points"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/quick-grade [post]
func (h *SubmissionHandler) QuickGrade(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.QuickGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid quick grade payload"))
		return
	}
	if err := validatePayload(h.validate, req); err != nil {
		response.Error(c, err)
		return
	}
	grade, err := h.service.QuickGrade(c.Request.Context(), actor, c.Param("id"), *req.Percent)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade)
}

// GetGrade godoc
// @Summary Get the grade of a submission
// @Tags Grading
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/grade [get]
func (h *SubmissionHandler) GetGrade(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	grade, err := h.service.GetGrade(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade)
}
