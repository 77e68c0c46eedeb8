package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-materials-api/internal/models"
	"github.com/noah-isme/tutor-materials-api/pkg/database"
)

const submissionColumns = `id, material_id, student_id, blob_id, blob_size, blob_mime_type, blob_original_name, submitted_at, is_late`

type submissionRow struct {
	ID         string    `db:"id"`
	MaterialID string    `db:"material_id"`
	StudentID  string    `db:"student_id"`
	blobRow
	SubmittedAt time.Time `db:"submitted_at"`
	IsLate      bool      `db:"is_late"`
}

func (r submissionRow) toModel() models.Submission {
	return models.Submission{
		ID:          r.ID,
		MaterialID:  r.MaterialID,
		StudentID:   r.StudentID,
		File:        r.ref(),
		SubmittedAt: r.SubmittedAt,
		IsLate:      r.IsLate,
		Status:      models.SubmissionStatusSubmitted,
	}
}

// SubmissionRepository persists the single submission row per material and student.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Upsert stores the submission for (material, student). The first write inserts the row; a
// later one locks it and overwrites it in place unless a published grade is attached, in which
// case models.ErrSubmissionGraded is returned. The blob the row pointed at is returned when it
// differs from the new one.
func (r *SubmissionRepository) Upsert(ctx context.Context, sub *models.Submission) (*models.BlobRef, error) {
	var replaced *models.BlobRef
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		id := uuid.NewString()
		const insert = `INSERT INTO submissions (` + submissionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (material_id, student_id) DO NOTHING`
		res, err := tx.ExecContext(ctx, insert,
			id, sub.MaterialID, sub.StudentID, sub.File.ID, sub.File.Size, sub.File.MimeType, sub.File.OriginalName,
			sub.SubmittedAt, sub.IsLate,
		)
		if err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		if inserted == 1 {
			sub.ID = id
			return nil
		}

		const lock = `SELECT ` + submissionColumns + ` FROM submissions WHERE material_id = $1 AND student_id = $2 FOR UPDATE`
		var current submissionRow
		if err := tx.GetContext(ctx, &current, lock, sub.MaterialID, sub.StudentID); err != nil {
			return fmt.Errorf("lock submission: %w", err)
		}

		const published = `SELECT EXISTS (SELECT 1 FROM grades WHERE submission_id = $1 AND is_draft = FALSE)`
		var graded bool
		if err := tx.GetContext(ctx, &graded, published, current.ID); err != nil {
			return fmt.Errorf("check grade: %w", err)
		}
		if graded {
			return models.ErrSubmissionGraded
		}

		const update = `UPDATE submissions SET blob_id = $2, blob_size = $3, blob_mime_type = $4, blob_original_name = $5,
			submitted_at = $6, is_late = $7 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update,
			current.ID, sub.File.ID, sub.File.Size, sub.File.MimeType, sub.File.OriginalName, sub.SubmittedAt, sub.IsLate,
		); err != nil {
			return fmt.Errorf("update submission: %w", err)
		}
		sub.ID = current.ID
		if current.BlobID != sub.File.ID {
			old := current.ref()
			replaced = &old
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return replaced, nil
}

// GetByID returns a submission by id.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	const query = `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	var row submissionRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	sub := row.toModel()
	return &sub, nil
}

// GetByMaterialAndStudent returns the student's submission for a material.
func (r *SubmissionRepository) GetByMaterialAndStudent(ctx context.Context, materialID, studentID string) (*models.Submission, error) {
	const query = `SELECT ` + submissionColumns + ` FROM submissions WHERE material_id = $1 AND student_id = $2`
	var row submissionRow
	if err := r.db.GetContext(ctx, &row, query, materialID, studentID); err != nil {
		return nil, err
	}
	sub := row.toModel()
	return &sub, nil
}

// ListByMaterial returns submissions for a material ordered by submission time.
func (r *SubmissionRepository) ListByMaterial(ctx context.Context, materialID string) ([]models.Submission, error) {
	const query = `SELECT ` + submissionColumns + ` FROM submissions WHERE material_id = $1 ORDER BY submitted_at ASC, id ASC`
	var rows []submissionRow
	if err := r.db.SelectContext(ctx, &rows, query, materialID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	subs := make([]models.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.toModel())
	}
	return subs, nil
}

// CountByMaterial counts submissions for a material.
func (r *SubmissionRepository) CountByMaterial(ctx context.Context, materialID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM submissions WHERE material_id = $1`, materialID); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return count, nil
}
