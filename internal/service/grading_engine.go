package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-materials-api/internal/models"
	"github.com/noah-isme/tutor-materials-api/pkg/config"
	appErrors "github.com/noah-isme/tutor-materials-api/pkg/errors"
)

type gradeStore interface {
	Upsert(ctx context.Context, grade *models.Grade) error
	GetBySubmission(ctx context.Context, submissionID string) (*models.Grade, error)
}

type submissionReader interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
}

// GradeScale maps a percentage of total points onto a letter.
type GradeScale struct {
	A float64
	B float64
	C float64
	D float64
}

// DefaultGradeScale is A >= 90, B >= 80, C >= 70, D >= 60, F below.
var DefaultGradeScale = GradeScale{A: 90, B: 80, C: 70, D: 60}

// NewGradeScale builds a scale from configured thresholds.
func NewGradeScale(cfg config.GradingConfig) (GradeScale, error) {
	if err := cfg.Validate(); err != nil {
		return GradeScale{}, err
	}
	return GradeScale{A: cfg.ThresholdA, B: cfg.ThresholdB, C: cfg.ThresholdC, D: cfg.ThresholdD}, nil
}

// Letter returns the letter for score out of total.
func (s GradeScale) Letter(score, total int) models.LetterGrade {
	if total <= 0 {
		return models.LetterF
	}
	percent := float64(score) / float64(total) * 100
	switch {
	case percent >= s.A:
		return models.LetterA
	case percent >= s.B:
		return models.LetterB
	case percent >= s.C:
		return models.LetterC
	case percent >= s.D:
		return models.LetterD
	default:
		return models.LetterF
	}
}

// GradeRequest describes a grading action.
type GradeRequest struct {
	SubmissionID string
	Score        int
	Feedback     *string
	IsDraft      bool
	GraderID     string
	At           time.Time
}

// GradingEngine computes and persists grades for submissions.
type GradingEngine struct {
	grades      gradeStore
	submissions submissionReader
	materials   materialReader
	scale       GradeScale
	cache       summaryCache
	logger      *zap.Logger
	now         func() time.Time
}

// NewGradingEngine constructs the engine. cache may be nil.
func NewGradingEngine(grades gradeStore, submissions submissionReader, materials materialReader, scale GradeScale, cache summaryCache, logger *zap.Logger) *GradingEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scale == (GradeScale{}) {
		scale = DefaultGradeScale
	}
	return &GradingEngine{
		grades:      grades,
		submissions: submissions,
		materials:   materials,
		scale:       scale,
		cache:       cache,
		logger:      logger,
		now:         time.Now,
	}
}

// Grade validates the score against the assignment's total points and upserts the grade.
func (e *GradingEngine) Grade(ctx context.Context, req GradeRequest) (*models.Grade, error) {
	if req.GraderID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grader is required")
	}
	sub, material, err := e.load(ctx, req.SubmissionID)
	if err != nil {
		return nil, err
	}
	total := material.Assignment.TotalPoints
	if req.Score < 0 || req.Score > total {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("score must be between 0 and %d", total))
	}
	at := req.At
	if at.IsZero() {
		at = e.now()
	}

	grade := &models.Grade{
		SubmissionID: sub.ID,
		Score:        req.Score,
		Letter:       e.scale.Letter(req.Score, total),
		Feedback:     trimOptional(req.Feedback),
		GradedAt:     at.UTC(),
		GradedBy:     req.GraderID,
		IsDraft:      req.IsDraft,
	}
	if err := e.grades.Upsert(ctx, grade); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Internal(err, "failed to store grade")
	}
	if e.cache != nil {
		e.cache.InvalidateSummary(ctx, material.ID)
	}
	e.logger.Debug("grade recorded",
		zap.String("submission_id", sub.ID),
		zap.Int("score", grade.Score),
		zap.String("letter", string(grade.Letter)),
		zap.Bool("draft", grade.IsDraft),
	)
	return grade, nil
}

// QuickGrade scores a submission as a percentage of total points, rounded to the nearest point.
func (e *GradingEngine) QuickGrade(ctx context.Context, submissionID string, percent float64, graderID string) (*models.Grade, error) {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "percent must be between 0 and 100")
	}
	_, material, err := e.load(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	score := int(math.Round(percent / 100 * float64(material.Assignment.TotalPoints)))
	return e.Grade(ctx, GradeRequest{SubmissionID: submissionID, Score: score, GraderID: graderID})
}

// GetGrade returns the grade of a submission. Drafts are only visible to their grader.
func (e *GradingEngine) GetGrade(ctx context.Context, submissionID, viewerID string) (*models.Grade, error) {
	grade, err := e.grades.GetBySubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Internal(err, "failed to load grade")
	}
	if grade.IsDraft && grade.GradedBy != viewerID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
	}
	return grade, nil
}

func (e *GradingEngine) load(ctx context.Context, submissionID string) (*models.Submission, *models.Material, error) {
	sub, err := e.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, nil, appErrors.Internal(err, "failed to load submission")
	}
	material, err := e.materials.GetByID(ctx, sub.MaterialID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, nil, appErrors.Internal(err, "failed to load material")
	}
	if material.Assignment == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "material is not gradable")
	}
	return sub, material, nil
}
