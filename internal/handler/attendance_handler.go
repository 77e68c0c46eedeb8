package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/tutor-materials-api/internal/dto"
	"github.com/noah-isme/tutor-materials-api/internal/middleware"
	"github.com/noah-isme/tutor-materials-api/internal/models"
	"github.com/noah-isme/tutor-materials-api/internal/service"
	appErrors "github.com/noah-isme/tutor-materials-api/pkg/errors"
	"github.com/noah-isme/tutor-materials-api/pkg/response"
)

type attendanceService interface {
	CreateSession(ctx context.Context, actor models.Principal, req service.CreateSessionRequest) (*models.AttendanceSession, error)
	RecordAttendance(ctx context.Context, actor models.Principal, sessionID, studentID string, status models.AttendanceStatus, joinedAt *time.Time) error
	MarkAllPresent(ctx context.Context, actor models.Principal, sessionID string) (*models.AttendanceSummary, error)
	AttendanceSummary(ctx context.Context, actor models.Principal, sessionID string) (*models.AttendanceSummary, error)
	ListAttendance(ctx context.Context, actor models.Principal, sessionID string) ([]models.AttendanceEntry, error)
	AttendanceReport(ctx context.Context, actor models.Principal, sessionID, format string) (*service.ReportDocument, error)
}

// AttendanceHandler exposes attendance session endpoints.
type AttendanceHandler struct {
	service  attendanceService
	validate *validator.Validate
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService, validate *validator.Validate) *AttendanceHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &AttendanceHandler{service: svc, validate: validate}
}

// CreateSession godoc
// @Summary Open an attendance session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param programId path string true "Program ID"
// @Param payload body dto.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /programs/{programId}/sessions [post]
func (h *AttendanceHandler) CreateSession(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid session payload"))
		return
	}
	if err := validatePayload(h.validate, req); err != nil {
		response.Error(c, err)
		return
	}
	date, err := time.Parse("2006-01-02", req.ScheduledDate)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "scheduled_date must be YYYY-MM-DD"))
		return
	}
	session, err := h.service.CreateSession(c.Request.Context(), actor, service.CreateSessionRequest{
		ProgramID:     c.Param("programId"),
		ScheduledDate: date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// SetStatus godoc
// @Summary Record a student's attendance
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param studentId path string true "Student ID"
// @Param payload body dto.AttendanceStatusRequest true "Status payload"
// @Success 204
// @Router /sessions/{id}/entries/{studentId} [put]
func (h *AttendanceHandler) SetStatus(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.AttendanceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid attendance payload"))
		return
	}
	if err := validatePayload(h.validate, req); err != nil {
		response.Error(c, err)
		return
	}
	status := models.AttendanceStatus(req.Status)
	if err := h.service.RecordAttendance(c.Request.Context(), actor, c.Param("id"), c.Param("studentId"), status, req.JoinedAt); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkAllPresent godoc
// @Summary Mark every student of the session present
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/mark-all-present [post]
func (h *AttendanceHandler) MarkAllPresent(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.service.MarkAllPresent(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// Summary godoc
// @Summary Attendance counters of a session
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.service.AttendanceSummary(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// Entries godoc
// @Summary List attendance entries of a session
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/entries [get]
func (h *AttendanceHandler) Entries(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	entries, err := h.service.ListAttendance(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(entries))
	response.JSON(c, http.StatusOK, entries, middleware.ExtractMeta(c))
}

// Report godoc
// @Summary Export the session attendance report
// @Tags Attendance
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /sessions/{id}/report [get]
func (h *AttendanceHandler) Report(c *gin.Context) {
	actor, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "csv")))
	doc, err := h.service.AttendanceReport(c.Request.Context(), actor, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, doc.Filename, doc.ContentType, doc.Body)
}
