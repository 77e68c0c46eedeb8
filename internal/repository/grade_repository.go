package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-materials-api/internal/models"
	"github.com/noah-isme/tutor-materials-api/pkg/database"
)

// GradeRepository handles the one grade row per submission.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// Upsert inserts or replaces the grade of a submission. The submission row is share-locked so a
// concurrent resubmission either commits first or sees the grade.
func (r *GradeRepository) Upsert(ctx context.Context, grade *models.Grade) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var id string
		if err := tx.GetContext(ctx, &id, `SELECT id FROM submissions WHERE id = $1 FOR SHARE`, grade.SubmissionID); err != nil {
			return err
		}
		const query = `INSERT INTO grades (submission_id, score, letter, feedback, graded_at, graded_by, is_draft)
        VALUES (:submission_id, :score, :letter, :feedback, :graded_at, :graded_by, :is_draft)
        ON CONFLICT (submission_id)
        DO UPDATE SET score = EXCLUDED.score, letter = EXCLUDED.letter, feedback = EXCLUDED.feedback,
            graded_at = EXCLUDED.graded_at, graded_by = EXCLUDED.graded_by, is_draft = EXCLUDED.is_draft`
		if _, err := tx.NamedExecContext(ctx, query, grade); err != nil {
			return fmt.Errorf("upsert grade: %w", err)
		}
		return nil
	})
}

// GetBySubmission returns the grade attached to a submission.
func (r *GradeRepository) GetBySubmission(ctx context.Context, submissionID string) (*models.Grade, error) {
	const query = `SELECT submission_id, score, letter, feedback, graded_at, graded_by, is_draft FROM grades WHERE submission_id = $1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, submissionID); err != nil {
		return nil, err
	}
	return &grade, nil
}

// ListByMaterial returns the grades of a material's submissions keyed by submission id.
func (r *GradeRepository) ListByMaterial(ctx context.Context, materialID string) (map[string]models.Grade, error) {
	const query = `SELECT g.submission_id, g.score, g.letter, g.feedback, g.graded_at, g.graded_by, g.is_draft
        FROM grades g
        JOIN submissions s ON s.id = g.submission_id
        WHERE s.material_id = $1`
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, materialID); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	result := make(map[string]models.Grade, len(grades))
	for _, g := range grades {
		result[g.SubmissionID] = g
	}
	return result, nil
}

// StatsByMaterial aggregates published (non-draft) grades of a material.
func (r *GradeRepository) StatsByMaterial(ctx context.Context, materialID string) (*models.GradeStats, error) {
	const query = `SELECT COUNT(g.submission_id) AS graded_count, COALESCE(SUM(g.score), 0) AS score_sum
        FROM grades g
        JOIN submissions s ON s.id = g.submission_id
        WHERE s.material_id = $1 AND g.is_draft = FALSE`
	var stats models.GradeStats
	if err := r.db.GetContext(ctx, &stats, query, materialID); err != nil {
		return nil, fmt.Errorf("grade stats: %w", err)
	}
	return &stats, nil
}
