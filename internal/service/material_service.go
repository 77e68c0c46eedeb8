package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-materials-api/internal/models"
	appErrors "github.com/noah-isme/tutor-materials-api/pkg/errors"
)

type programDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
	IsEnrolled(ctx context.Context, programID, studentID string) (bool, error)
}

type blobStore interface {
	Put(ctx context.Context, r io.Reader, mimeType, name string) (models.BlobRef, error)
	Release(ctx context.Context, ref models.BlobRef) error
}

type urlSigner interface {
	Sign(blobID string) (string, time.Time, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// FileUpload carries an uploaded file stream with its metadata.
type FileUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.ReadSeeker
}

// UploadMaterialInput describes a new material and its file.
type UploadMaterialInput struct {
	ProgramID   string
	Type        models.MaterialType
	Title       string
	Description *string
	IsRequired  bool
	SortOrder   int
	Assignment  *models.AssignmentConfig
	File        FileUpload
}

// GradeInput describes a tutor grading action.
type GradeInput struct {
	SubmissionID string
	Score        int
	Feedback     *string
	IsDraft      bool
}

// DownloadLink is a time limited link to a stored file.
type DownloadLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
}

// MaterialServiceConfig holds upload limits and link settings.
type MaterialServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// MaterialService authorizes the acting principal and delegates to the catalog, the
// submission tracker, the grading engine and the attendance register.
type MaterialService struct {
	programs   programDirectory
	catalog    *MaterialCatalog
	tracker    *SubmissionTracker
	grading    *GradingEngine
	attendance *AttendanceRegister
	blobs      blobStore
	signer     urlSigner
	audit      auditLogger
	cache      summaryCache
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        MaterialServiceConfig
	mimeSet    map[string]struct{}
	now        func() time.Time
}

// NewMaterialService wires the orchestrator. signer, audit, cache and metrics may be nil.
func NewMaterialService(programs programDirectory, catalog *MaterialCatalog, tracker *SubmissionTracker, grading *GradingEngine, attendance *AttendanceRegister, blobs blobStore, signer urlSigner, audit auditLogger, cache summaryCache, metrics *MetricsService, logger *zap.Logger, cfg MaterialServiceConfig) *MaterialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 50 * 1024 * 1024
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(mt)] = struct{}{}
	}
	return &MaterialService{
		programs:   programs,
		catalog:    catalog,
		tracker:    tracker,
		grading:    grading,
		attendance: attendance,
		blobs:      blobs,
		signer:     signer,
		audit:      audit,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		mimeSet:    mimeSet,
		now:        time.Now,
	}
}

// ListMaterials returns the program's materials, optionally filtered by category.
func (s *MaterialService) ListMaterials(ctx context.Context, actor models.Principal, programID string, category models.MaterialCategory) ([]models.Material, error) {
	if err := s.ensureCanView(ctx, actor, programID); err != nil {
		return nil, err
	}
	return s.catalog.List(ctx, programID, category)
}

// GetMaterial returns one material the actor may view.
func (s *MaterialService) GetMaterial(ctx context.Context, actor models.Principal, materialID string) (*models.Material, error) {
	material, err := s.catalog.Get(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCanView(ctx, actor, material.ProgramID); err != nil {
		return nil, err
	}
	return material, nil
}

// UploadMaterial stores the file and publishes the material. The stored file is released
// again when the material cannot be created.
func (s *MaterialService) UploadMaterial(ctx context.Context, actor models.Principal, input UploadMaterialInput) (*models.Material, error) {
	if err := s.ensureOwner(ctx, actor, input.ProgramID); err != nil {
		return nil, err
	}
	ref, err := s.storeFile(ctx, input.File)
	if err != nil {
		return nil, err
	}
	material, err := s.catalog.Create(ctx, CreateMaterialRequest{
		ProgramID:   input.ProgramID,
		Type:        input.Type,
		Title:       input.Title,
		Description: input.Description,
		IsRequired:  input.IsRequired,
		SortOrder:   input.SortOrder,
		Blob:        ref,
		Assignment:  input.Assignment,
		CreatedBy:   actor.UserID,
	})
	if err != nil {
		s.releaseQuietly(ctx, ref)
		return nil, err
	}

	s.metrics.MaterialUploaded(string(material.Type))
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionMaterialUpload,
		Resource:   "material",
		ResourceID: &material.ID,
		NewValues:  auditPayload(map[string]interface{}{"title": material.Title, "type": material.Type, "program_id": material.ProgramID}),
	})
	return material, nil
}

// UpdateMaterial edits metadata and optionally replaces the file.
func (s *MaterialService) UpdateMaterial(ctx context.Context, actor models.Principal, materialID string, patch models.MaterialPatch, file *FileUpload) (*models.Material, error) {
	current, err := s.catalog.Get(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOwner(ctx, actor, current.ProgramID); err != nil {
		return nil, err
	}
	if patch.Type != nil && *patch.Type != current.Type {
		return nil, appErrors.Clone(appErrors.ErrValidation, "material type cannot be changed")
	}

	var newRef *models.BlobRef
	if file != nil {
		ref, err := s.storeFile(ctx, *file)
		if err != nil {
			return nil, err
		}
		newRef = &ref
	}
	updated, err := s.catalog.Update(ctx, materialID, patch, newRef)
	if err != nil {
		if newRef != nil {
			s.releaseQuietly(ctx, *newRef)
		}
		return nil, err
	}
	if updated.UpdatedAt.After(current.UpdatedAt) {
		s.emitAudit(ctx, &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionMaterialUpdate,
			Resource:   "material",
			ResourceID: &updated.ID,
			OldValues:  auditPayload(map[string]interface{}{"title": current.Title, "blob_id": current.Blob.ID}),
			NewValues:  auditPayload(map[string]interface{}{"title": updated.Title, "blob_id": updated.Blob.ID}),
		})
	}
	return updated, nil
}

// DeleteMaterial irreversibly removes a material with its submissions and grades.
// confirmed must be true.
func (s *MaterialService) DeleteMaterial(ctx context.Context, actor models.Principal, materialID string, confirmed bool) (*models.DeletedMaterial, error) {
	if !confirmed {
		return nil, appErrors.Clone(appErrors.ErrValidation, "deletion must be confirmed; it removes all submissions and grades and cannot be undone")
	}
	material, err := s.catalog.Get(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOwner(ctx, actor, material.ProgramID); err != nil {
		return nil, err
	}
	report, err := s.catalog.Delete(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.InvalidateSummary(ctx, materialID)
	}
	s.metrics.MaterialDeleted()
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionMaterialDelete,
		Resource:   "material",
		ResourceID: &materialID,
		OldValues: auditPayload(map[string]interface{}{
			"title":       material.Title,
			"submissions": report.SubmissionsCount,
			"grades":      report.GradesCount,
		}),
	})
	return report, nil
}

// SubmitAssignment stores a student's file against an assignment material.
func (s *MaterialService) SubmitAssignment(ctx context.Context, actor models.Principal, materialID string, file FileUpload) (*models.Submission, error) {
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can submit")
	}
	material, err := s.catalog.Get(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureEnrolled(ctx, actor, material.ProgramID); err != nil {
		return nil, err
	}
	if !material.Type.IsAssignment() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "material does not accept submissions")
	}
	ref, err := s.storeFile(ctx, file)
	if err != nil {
		return nil, err
	}
	result, err := s.tracker.Submit(ctx, materialID, actor.UserID, ref, s.now())
	if err != nil {
		s.releaseQuietly(ctx, ref)
		return nil, err
	}
	s.metrics.SubmissionAccepted(result.Submission.IsLate, result.Replaced != nil)
	return result.Submission, nil
}

// MySubmission returns the acting student's submission state for a material.
func (s *MaterialService) MySubmission(ctx context.Context, actor models.Principal, materialID string) (*models.Submission, error) {
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students have submissions")
	}
	material, err := s.catalog.Get(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureEnrolled(ctx, actor, material.ProgramID); err != nil {
		return nil, err
	}
	return s.tracker.ForStudent(ctx, materialID, actor.UserID)
}

// ListSubmissions returns every submission of a material for its tutor.
func (s *MaterialService) ListSubmissions(ctx context.Context, actor models.Principal, materialID string) ([]models.Submission, error) {
	material, err := s.catalog.Get(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOwner(ctx, actor, material.ProgramID); err != nil {
		return nil, err
	}
	return s.tracker.ListByMaterial(ctx, materialID, actor.UserID)
}

// SubmissionSummary returns the submission counters of a material.
func (s *MaterialService) SubmissionSummary(ctx context.Context, actor models.Principal, materialID string) (*models.SubmissionSummary, error) {
	material, err := s.catalog.Get(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOwner(ctx, actor, material.ProgramID); err != nil {
		return nil, err
	}
	return s.tracker.Summary(ctx, materialID)
}

// GradeSubmission records a grade on behalf of the owning tutor.
func (s *MaterialService) GradeSubmission(ctx context.Context, actor models.Principal, input GradeInput) (*models.Grade, error) {
	if err := s.ensureGrader(ctx, actor, input.SubmissionID); err != nil {
		return nil, err
	}
	grade, err := s.grading.Grade(ctx, GradeRequest{
		SubmissionID: input.SubmissionID,
		Score:        input.Score,
		Feedback:     input.Feedback,
		IsDraft:      input.IsDraft,
		GraderID:     actor.UserID,
		At:           s.now(),
	})
	if err != nil {
		return nil, err
	}
	s.recordGrade(ctx, actor, grade)
	return grade, nil
}

// QuickGrade grades a submission as a percentage of its total points.
func (s *MaterialService) QuickGrade(ctx context.Context, actor models.Principal, submissionID string, percent float64) (*models.Grade, error) {
	if err := s.ensureGrader(ctx, actor, submissionID); err != nil {
		return nil, err
	}
	grade, err := s.grading.QuickGrade(ctx, submissionID, percent, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.recordGrade(ctx, actor, grade)
	return grade, nil
}

// GetGrade returns a submission's grade. Students only see published grades of their own
// submissions; drafts are visible to their grader only.
func (s *MaterialService) GetGrade(ctx context.Context, actor models.Principal, submissionID string) (*models.Grade, error) {
	sub, err := s.tracker.Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent {
		if sub.StudentID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not your submission")
		}
	} else if err := s.ensureMaterialOwner(ctx, actor, sub.MaterialID); err != nil {
		return nil, err
	}
	return s.grading.GetGrade(ctx, submissionID, actor.UserID)
}

// CreateSession opens an attendance session for a program.
func (s *MaterialService) CreateSession(ctx context.Context, actor models.Principal, req CreateSessionRequest) (*models.AttendanceSession, error) {
	if err := s.ensureOwner(ctx, actor, req.ProgramID); err != nil {
		return nil, err
	}
	session, err := s.attendance.CreateSession(ctx, req)
	if err != nil {
		return nil, err
	}
	s.metrics.SessionCreated()
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionSessionCreate,
		Resource:   "attendance_session",
		ResourceID: &session.ID,
		NewValues:  auditPayload(map[string]interface{}{"program_id": session.ProgramID, "scheduled_date": session.ScheduledDate.Format("2006-01-02")}),
	})
	return session, nil
}

// RecordAttendance sets one student's status in a session.
func (s *MaterialService) RecordAttendance(ctx context.Context, actor models.Principal, sessionID, studentID string, status models.AttendanceStatus, joinedAt *time.Time) error {
	if err := s.ensureSessionOwner(ctx, actor, sessionID); err != nil {
		return err
	}
	return s.attendance.SetStatus(ctx, sessionID, studentID, status, joinedAt)
}

// MarkAllPresent marks the whole session present and returns the resulting summary.
func (s *MaterialService) MarkAllPresent(ctx context.Context, actor models.Principal, sessionID string) (*models.AttendanceSummary, error) {
	if err := s.ensureSessionOwner(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	if _, err := s.attendance.MarkAllPresent(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.attendance.Summary(ctx, sessionID)
}

// AttendanceSummary returns the counters of a session.
func (s *MaterialService) AttendanceSummary(ctx context.Context, actor models.Principal, sessionID string) (*models.AttendanceSummary, error) {
	if err := s.ensureSessionOwner(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	return s.attendance.Summary(ctx, sessionID)
}

// ListAttendance returns the entries of a session.
func (s *MaterialService) ListAttendance(ctx context.Context, actor models.Principal, sessionID string) ([]models.AttendanceEntry, error) {
	if err := s.ensureSessionOwner(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	return s.attendance.ListEntries(ctx, sessionID)
}

// AttendanceReport renders the session report in the requested format.
func (s *MaterialService) AttendanceReport(ctx context.Context, actor models.Principal, sessionID, format string) (*ReportDocument, error) {
	if err := s.ensureSessionOwner(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	return s.attendance.RenderReport(ctx, sessionID, format)
}

// MaterialDownload returns a signed link to the material's file.
func (s *MaterialService) MaterialDownload(ctx context.Context, actor models.Principal, materialID string) (*DownloadLink, error) {
	material, err := s.GetMaterial(ctx, actor, materialID)
	if err != nil {
		return nil, err
	}
	return s.link(material.Blob)
}

// SubmissionDownload returns a signed link to a submission file for its student or tutor.
func (s *MaterialService) SubmissionDownload(ctx context.Context, actor models.Principal, submissionID string) (*DownloadLink, error) {
	sub, err := s.tracker.Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent {
		if sub.StudentID != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not your submission")
		}
	} else if err := s.ensureMaterialOwner(ctx, actor, sub.MaterialID); err != nil {
		return nil, err
	}
	return s.link(sub.File)
}

func (s *MaterialService) link(ref models.BlobRef) (*DownloadLink, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download links are not configured")
	}
	token, expiresAt, err := s.signer.Sign(ref.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign download link")
	}
	return &DownloadLink{
		URL:       fmt.Sprintf("%s/files/%s?token=%s", strings.TrimRight(s.cfg.APIPrefix, "/"), ref.ID, token),
		ExpiresAt: expiresAt,
		Filename:  ref.OriginalName,
		MimeType:  ref.MimeType,
	}, nil
}

func (s *MaterialService) recordGrade(ctx context.Context, actor models.Principal, grade *models.Grade) {
	s.metrics.GradeRecorded(grade.IsDraft)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionGradeRecord,
		Resource:   "grade",
		ResourceID: &grade.SubmissionID,
		NewValues:  auditPayload(map[string]interface{}{"score": grade.Score, "letter": grade.Letter, "is_draft": grade.IsDraft}),
	})
}

func (s *MaterialService) ensureOwner(ctx context.Context, actor models.Principal, programID string) error {
	program, err := s.loadProgram(ctx, actor, programID)
	if err != nil {
		return err
	}
	switch {
	case actor.IsAdmin():
		return nil
	case actor.Role == models.RoleTutor && program.TutorID == actor.UserID:
		return nil
	default:
		return appErrors.Clone(appErrors.ErrForbidden, "you do not own this program")
	}
}

func (s *MaterialService) ensureCanView(ctx context.Context, actor models.Principal, programID string) error {
	if actor.Role == models.RoleStudent {
		return s.ensureEnrolled(ctx, actor, programID)
	}
	return s.ensureOwner(ctx, actor, programID)
}

func (s *MaterialService) ensureEnrolled(ctx context.Context, actor models.Principal, programID string) error {
	if _, err := s.loadProgram(ctx, actor, programID); err != nil {
		return err
	}
	ok, err := s.programs.IsEnrolled(ctx, programID, actor.UserID)
	if err != nil {
		return appErrors.Internal(err, "failed to check enrollment")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "you are not enrolled in this program")
	}
	return nil
}

func (s *MaterialService) ensureMaterialOwner(ctx context.Context, actor models.Principal, materialID string) error {
	material, err := s.catalog.Get(ctx, materialID)
	if err != nil {
		return err
	}
	return s.ensureOwner(ctx, actor, material.ProgramID)
}

func (s *MaterialService) ensureGrader(ctx context.Context, actor models.Principal, submissionID string) error {
	sub, err := s.tracker.Get(ctx, submissionID)
	if err != nil {
		return err
	}
	return s.ensureMaterialOwner(ctx, actor, sub.MaterialID)
}

func (s *MaterialService) ensureSessionOwner(ctx context.Context, actor models.Principal, sessionID string) error {
	session, err := s.attendance.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.ensureOwner(ctx, actor, session.ProgramID)
}

func (s *MaterialService) loadProgram(ctx context.Context, actor models.Principal, programID string) (*models.Program, error) {
	if actor.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if programID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "program_id is required")
	}
	program, err := s.programs.FindByID(ctx, programID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Internal(err, "failed to load program")
	}
	return program, nil
}

func (s *MaterialService) storeFile(ctx context.Context, file FileUpload) (models.BlobRef, error) {
	if file.Content == nil {
		return models.BlobRef{}, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if file.Size > s.cfg.MaxFileSize {
		return models.BlobRef{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}
	mimeType, err := detectMime(file)
	if err != nil {
		return models.BlobRef{}, err
	}
	if len(s.mimeSet) > 0 {
		if _, allowed := s.mimeSet[strings.ToLower(mimeType)]; !allowed {
			return models.BlobRef{}, appErrors.Clone(appErrors.ErrValidation, "mime type not allowed")
		}
	}
	ref, err := s.blobs.Put(ctx, io.LimitReader(file.Content, s.cfg.MaxFileSize+1), mimeType, file.Filename)
	if err != nil {
		return models.BlobRef{}, appErrors.Internal(err, "failed to store file")
	}
	if ref.Size > s.cfg.MaxFileSize {
		s.releaseQuietly(ctx, ref)
		return models.BlobRef{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}
	if ref.Size == 0 {
		s.releaseQuietly(ctx, ref)
		return models.BlobRef{}, appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	return ref, nil
}

func detectMime(file FileUpload) (string, error) {
	if file.MimeType != "" && file.MimeType != "application/octet-stream" {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(file.MimeType, ";", 2)[0])), nil
	}
	header := make([]byte, 512)
	n, err := file.Content.Read(header)
	if err != nil && err != io.EOF {
		return "", appErrors.Internal(err, "failed to inspect file")
	}
	if _, err := file.Content.Seek(0, io.SeekStart); err != nil {
		return "", appErrors.Internal(err, "failed to reset upload stream")
	}
	if n == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	return strings.SplitN(http.DetectContentType(header[:n]), ";", 2)[0], nil
}

func (s *MaterialService) releaseQuietly(ctx context.Context, ref models.BlobRef) {
	if err := s.blobs.Release(ctx, ref); err != nil {
		s.logger.Warn("blob release failed", zap.String("blob_id", ref.ID), zap.Error(err))
	}
}

func (s *MaterialService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "material-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to create material audit", zap.String("action", log.Action), zap.Error(err))
	}
}

func auditPayload(values map[string]interface{}) []byte {
	payload, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return payload
}
