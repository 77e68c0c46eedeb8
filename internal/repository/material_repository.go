package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tutor-materials-api/internal/models"
	"github.com/noah-isme/tutor-materials-api/pkg/database"
)

const materialColumns = `m.id, m.program_id, m.title, m.description, m.type, m.is_required, m.sort_order,
	m.blob_id, m.blob_size, m.blob_mime_type, m.blob_original_name, m.created_by, m.created_at, m.updated_at,
	ac.due_at, ac.total_points, ac.allow_late`

type materialRow struct {
	ID               string     `db:"id"`
	ProgramID        string     `db:"program_id"`
	Title            string     `db:"title"`
	Description      *string    `db:"description"`
	Type             string     `db:"type"`
	IsRequired       bool       `db:"is_required"`
	SortOrder        int        `db:"sort_order"`
	BlobID           string     `db:"blob_id"`
	BlobSize         int64      `db:"blob_size"`
	BlobMimeType     string     `db:"blob_mime_type"`
	BlobOriginalName string     `db:"blob_original_name"`
	CreatedBy        string     `db:"created_by"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
	DueAt            *time.Time `db:"due_at"`
	TotalPoints      *int       `db:"total_points"`
	AllowLate        *bool      `db:"allow_late"`
}

func (r materialRow) toModel() models.Material {
	m := models.Material{
		ID:          r.ID,
		ProgramID:   r.ProgramID,
		Title:       r.Title,
		Description: r.Description,
		Type:        models.MaterialType(r.Type),
		IsRequired:  r.IsRequired,
		SortOrder:   r.SortOrder,
		Blob: models.BlobRef{
			ID:           r.BlobID,
			Size:         r.BlobSize,
			MimeType:     r.BlobMimeType,
			OriginalName: r.BlobOriginalName,
		},
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.TotalPoints != nil {
		cfg := &models.AssignmentConfig{DueAt: r.DueAt, TotalPoints: *r.TotalPoints}
		if r.AllowLate != nil {
			cfg.AllowLate = *r.AllowLate
		}
		m.Assignment = cfg
	}
	return m
}

// blobRow scans the flat blob columns shared by materials and submissions.
type blobRow struct {
	BlobID           string `db:"blob_id"`
	BlobSize         int64  `db:"blob_size"`
	BlobMimeType     string `db:"blob_mime_type"`
	BlobOriginalName string `db:"blob_original_name"`
}

func (b blobRow) ref() models.BlobRef {
	return models.BlobRef{ID: b.BlobID, Size: b.BlobSize, MimeType: b.BlobMimeType, OriginalName: b.BlobOriginalName}
}

// MaterialRepository persists materials together with their assignment configuration.
type MaterialRepository struct {
	db *sqlx.DB
}

// NewMaterialRepository constructs the repository.
func NewMaterialRepository(db *sqlx.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// Create inserts the material and, for assignment types, its configuration in one transaction.
func (r *MaterialRepository) Create(ctx context.Context, material *models.Material) error {
	if material.ID == "" {
		material.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if material.CreatedAt.IsZero() {
		material.CreatedAt = now
	}
	if material.UpdatedAt.IsZero() {
		material.UpdatedAt = material.CreatedAt
	}

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const insertMaterial = `INSERT INTO materials (id, program_id, title, description, type, is_required, sort_order,
			blob_id, blob_size, blob_mime_type, blob_original_name, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
		if _, err := tx.ExecContext(ctx, insertMaterial,
			material.ID, material.ProgramID, material.Title, material.Description, string(material.Type),
			material.IsRequired, material.SortOrder,
			material.Blob.ID, material.Blob.Size, material.Blob.MimeType, material.Blob.OriginalName,
			material.CreatedBy, material.CreatedAt, material.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert material: %w", err)
		}
		if material.Assignment == nil {
			return nil
		}
		const insertConfig = `INSERT INTO assignment_configs (material_id, due_at, total_points, allow_late) VALUES ($1, $2, $3, $4)`
		if _, err := tx.ExecContext(ctx, insertConfig,
			material.ID, material.Assignment.DueAt, material.Assignment.TotalPoints, material.Assignment.AllowLate,
		); err != nil {
			return fmt.Errorf("insert assignment config: %w", err)
		}
		return nil
	})
}

// GetByID fetches a material with its assignment configuration.
func (r *MaterialRepository) GetByID(ctx context.Context, id string) (*models.Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials m
		LEFT JOIN assignment_configs ac ON ac.material_id = m.id
		WHERE m.id = $1`
	var row materialRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	material := row.toModel()
	return &material, nil
}

// List returns program materials newest first, ties broken by sort order.
func (r *MaterialRepository) List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials m
		LEFT JOIN assignment_configs ac ON ac.material_id = m.id
		WHERE m.program_id = $1`
	args := []interface{}{filter.ProgramID}
	if types := filter.Category.Types(); len(types) > 0 {
		values := make([]string, len(types))
		for i, t := range types {
			values[i] = string(t)
		}
		query += fmt.Sprintf(" AND m.type = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(values))
	}
	query += " ORDER BY m.created_at DESC, m.sort_order ASC, m.id ASC"

	var rows []materialRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	materials := make([]models.Material, 0, len(rows))
	for _, row := range rows {
		materials = append(materials, row.toModel())
	}
	return materials, nil
}

// Update writes the mutable fields and optionally swaps the blob in one transaction.
// When newBlob replaces an existing blob the previous reference is returned so it can be
// released once the transaction has committed.
func (r *MaterialRepository) Update(ctx context.Context, material *models.Material, newBlob *models.BlobRef) (*models.BlobRef, error) {
	var replaced *models.BlobRef
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const lock = `SELECT blob_id, blob_size, blob_mime_type, blob_original_name FROM materials WHERE id = $1 FOR UPDATE`
		var current blobRow
		if err := tx.GetContext(ctx, &current, lock, material.ID); err != nil {
			return err
		}
		blob := current.ref()
		if newBlob != nil {
			blob = *newBlob
		}

		const update = `UPDATE materials SET title = $2, description = $3, is_required = $4, sort_order = $5,
			blob_id = $6, blob_size = $7, blob_mime_type = $8, blob_original_name = $9, updated_at = $10
			WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update,
			material.ID, material.Title, material.Description, material.IsRequired, material.SortOrder,
			blob.ID, blob.Size, blob.MimeType, blob.OriginalName, material.UpdatedAt,
		); err != nil {
			return fmt.Errorf("update material: %w", err)
		}
		material.Blob = blob
		if newBlob != nil && current.BlobID != newBlob.ID {
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

// Delete removes the material and everything it owns in a single transaction:
// grades, submissions, assignment configuration and the material row itself.
// The returned report lists every blob the removed rows referenced.
func (r *MaterialRepository) Delete(ctx context.Context, id string) (*models.DeletedMaterial, error) {
	report := &models.DeletedMaterial{MaterialID: id}
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const lock = `SELECT blob_id, blob_size, blob_mime_type, blob_original_name FROM materials WHERE id = $1 FOR UPDATE`
		var own blobRow
		if err := tx.GetContext(ctx, &own, lock, id); err != nil {
			return err
		}
		report.Blobs = append(report.Blobs, own.ref())

		const submissionBlobs = `SELECT blob_id, blob_size, blob_mime_type, blob_original_name FROM submissions WHERE material_id = $1 ORDER BY submitted_at`
		var subs []blobRow
		if err := tx.SelectContext(ctx, &subs, submissionBlobs, id); err != nil {
			return fmt.Errorf("load submission blobs: %w", err)
		}
		for _, s := range subs {
			report.Blobs = append(report.Blobs, s.ref())
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM grades WHERE submission_id IN (SELECT id FROM submissions WHERE material_id = $1)`, id)
		if err != nil {
			return fmt.Errorf("delete grades: %w", err)
		}
		report.GradesCount = affected(res)

		res, err = tx.ExecContext(ctx, `DELETE FROM submissions WHERE material_id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete submissions: %w", err)
		}
		report.SubmissionsCount = affected(res)

		if _, err := tx.ExecContext(ctx, `DELETE FROM assignment_configs WHERE material_id = $1`, id); err != nil {
			return fmt.Errorf("delete assignment config: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM materials WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete material: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// FindBlob resolves blob metadata for a stored material or submission file.
func (r *MaterialRepository) FindBlob(ctx context.Context, blobID string) (*models.BlobRef, error) {
	const query = `SELECT blob_id, blob_size, blob_mime_type, blob_original_name FROM materials WHERE blob_id = $1
UNION ALL
SELECT blob_id, blob_size, blob_mime_type, blob_original_name FROM submissions WHERE blob_id = $1
LIMIT 1`
	var row blobRow
	if err := r.db.GetContext(ctx, &row, query, blobID); err != nil {
		return nil, err
	}
	ref := row.ref()
	return &ref, nil
}

func affected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}

// IsNotFound reports whether err signals a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
