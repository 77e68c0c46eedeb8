package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-materials-api/internal/models"
	appErrors "github.com/noah-isme/tutor-materials-api/pkg/errors"
)

type submissionStore interface {
	Upsert(ctx context.Context, sub *models.Submission) (*models.BlobRef, error)
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	GetByMaterialAndStudent(ctx context.Context, materialID, studentID string) (*models.Submission, error)
	ListByMaterial(ctx context.Context, materialID string) ([]models.Submission, error)
	CountByMaterial(ctx context.Context, materialID string) (int, error)
}

type gradeReader interface {
	GetBySubmission(ctx context.Context, submissionID string) (*models.Grade, error)
	ListByMaterial(ctx context.Context, materialID string) (map[string]models.Grade, error)
	StatsByMaterial(ctx context.Context, materialID string) (*models.GradeStats, error)
}

type materialReader interface {
	GetByID(ctx context.Context, id string) (*models.Material, error)
}

type rosterProvider interface {
	EnrolledStudents(ctx context.Context, programID string) ([]models.RosterStudent, error)
}

type summaryCache interface {
	GetSummary(ctx context.Context, materialID string) (*models.SubmissionSummary, bool)
	SetSummary(ctx context.Context, summary *models.SubmissionSummary)
	InvalidateSummary(ctx context.Context, materialID string)
}

// SubmissionTracker owns the per-student submission rows of assignment materials.
type SubmissionTracker struct {
	submissions submissionStore
	grades      gradeReader
	materials   materialReader
	roster      rosterProvider
	releaser    blobReleaser
	cache       summaryCache
	logger      *zap.Logger
	now         func() time.Time
}

// NewSubmissionTracker constructs the tracker. cache may be nil.
func NewSubmissionTracker(submissions submissionStore, grades gradeReader, materials materialReader, roster rosterProvider, releaser blobReleaser, cache summaryCache, logger *zap.Logger) *SubmissionTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionTracker{
		submissions: submissions,
		grades:      grades,
		materials:   materials,
		roster:      roster,
		releaser:    releaser,
		cache:       cache,
		logger:      logger,
		now:         time.Now,
	}
}

// Submit stores the student's file for an assignment material. Without a prior submission a
// past-due assignment that disallows late work is closed. Once a published grade exists the
// submission can no longer be replaced. A replaced file is released after the write commits.
func (t *SubmissionTracker) Submit(ctx context.Context, materialID, studentID string, blob models.BlobRef, at time.Time) (*models.SubmitResult, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	if blob.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if at.IsZero() {
		at = t.now()
	}
	at = at.UTC()

	material, err := t.loadAssignment(ctx, materialID)
	if err != nil {
		return nil, err
	}
	cfg := material.Assignment

	existing, err := t.submissions.GetByMaterialAndStudent(ctx, materialID, studentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to load submission")
	}
	if existing == nil {
		if cfg.IsPastDue(at) && !cfg.AllowLate {
			return nil, appErrors.Clone(appErrors.ErrAssignmentClosed, "the due date has passed and late submissions are not accepted")
		}
	} else {
		grade, err := t.publishedGrade(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		if grade != nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "submission has already been graded")
		}
	}

	sub := &models.Submission{
		MaterialID:  materialID,
		StudentID:   studentID,
		File:        blob,
		SubmittedAt: at,
		IsLate:      cfg.IsPastDue(at),
		Status:      models.SubmissionStatusSubmitted,
	}
	replaced, err := t.submissions.Upsert(ctx, sub)
	if err != nil {
		if errors.Is(err, models.ErrSubmissionGraded) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "submission has already been graded")
		}
		return nil, appErrors.Internal(err, "failed to store submission")
	}
	if t.cache != nil {
		t.cache.InvalidateSummary(ctx, materialID)
	}
	if replaced != nil && t.releaser != nil {
		if err := t.releaser.Release(ctx, *replaced); err != nil {
			t.logger.Warn("blob release failed", zap.String("blob_id", replaced.ID), zap.Error(err))
		}
	}
	return &models.SubmitResult{Submission: sub, Replaced: replaced}, nil
}

// StatusOf derives the submission status from the presence of a published grade.
func StatusOf(sub *models.Submission) models.SubmissionStatus {
	if sub == nil {
		return models.SubmissionStatusNotSubmitted
	}
	if sub.Grade != nil && !sub.Grade.IsDraft {
		return models.SubmissionStatusGraded
	}
	return models.SubmissionStatusSubmitted
}

// Get returns a submission with its published grade attached.
func (t *SubmissionTracker) Get(ctx context.Context, submissionID string) (*models.Submission, error) {
	sub, err := t.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Internal(err, "failed to load submission")
	}
	grade, err := t.publishedGrade(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	sub.Grade = grade
	sub.Status = StatusOf(sub)
	return sub, nil
}

// ForStudent returns the student's submission for a material or a not_submitted placeholder.
func (t *SubmissionTracker) ForStudent(ctx context.Context, materialID, studentID string) (*models.Submission, error) {
	sub, err := t.submissions.GetByMaterialAndStudent(ctx, materialID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.Submission{MaterialID: materialID, StudentID: studentID, Status: models.SubmissionStatusNotSubmitted}, nil
		}
		return nil, appErrors.Internal(err, "failed to load submission")
	}
	grade, err := t.publishedGrade(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	sub.Grade = grade
	sub.Status = StatusOf(sub)
	return sub, nil
}

// ListByMaterial returns every submission of a material. A draft grade is attached only
// for the viewer who wrote it; status always reflects published grades.
func (t *SubmissionTracker) ListByMaterial(ctx context.Context, materialID, viewerID string) ([]models.Submission, error) {
	subs, err := t.submissions.ListByMaterial(ctx, materialID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list submissions")
	}
	grades, err := t.grades.ListByMaterial(ctx, materialID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list grades")
	}
	for i := range subs {
		grade, ok := grades[subs[i].ID]
		if !ok {
			subs[i].Status = models.SubmissionStatusSubmitted
			continue
		}
		if grade.IsDraft {
			subs[i].Status = models.SubmissionStatusSubmitted
			if viewerID != "" && grade.GradedBy == viewerID {
				g := grade
				subs[i].Grade = &g
			}
			continue
		}
		g := grade
		subs[i].Grade = &g
		subs[i].Status = models.SubmissionStatusGraded
	}
	return subs, nil
}

// Summary reports submission, roster and published grade counters for a material.
// The average divides by the number of published grades and is 0 when there are none.
// Only the submission and grade counters are cached; the roster is read on every call.
func (t *SubmissionTracker) Summary(ctx context.Context, materialID string) (*models.SubmissionSummary, error) {
	material, err := t.loadAssignment(ctx, materialID)
	if err != nil {
		return nil, err
	}

	var summary *models.SubmissionSummary
	if t.cache != nil {
		if cached, ok := t.cache.GetSummary(ctx, materialID); ok {
			summary = cached
		}
	}
	if summary == nil {
		submitted, err := t.submissions.CountByMaterial(ctx, materialID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to count submissions")
		}
		stats, err := t.grades.StatsByMaterial(ctx, materialID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to aggregate grades")
		}
		summary = &models.SubmissionSummary{
			MaterialID:     materialID,
			SubmittedCount: submitted,
			GradedCount:    stats.Count,
		}
		if stats.Count > 0 {
			summary.AverageScore = math.Round(float64(stats.ScoreSum)/float64(stats.Count)*100) / 100
		}
		if t.cache != nil {
			t.cache.SetSummary(ctx, summary)
		}
	}

	students, err := t.roster.EnrolledStudents(ctx, material.ProgramID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load roster")
	}
	summary.EnrolledCount = len(students)
	return summary, nil
}

func (t *SubmissionTracker) loadAssignment(ctx context.Context, materialID string) (*models.Material, error) {
	material, err := t.materials.GetByID(ctx, materialID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, appErrors.Internal(err, "failed to load material")
	}
	if !material.Type.IsAssignment() || material.Assignment == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "material does not accept submissions")
	}
	return material, nil
}

func (t *SubmissionTracker) publishedGrade(ctx context.Context, submissionID string) (*models.Grade, error) {
	grade, err := t.grades.GetBySubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Internal(err, "failed to load grade")
	}
	if grade.IsDraft {
		return nil, nil
	}
	return grade, nil
}
