package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-materials-api/internal/models"
)

// ProgramRepository reads programs and their active roster.
type ProgramRepository struct {
	db *sqlx.DB
}

// NewProgramRepository constructs the repository.
func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

// FindByID returns a program by id.
func (r *ProgramRepository) FindByID(ctx context.Context, id string) (*models.Program, error) {
	const query = `SELECT id, name, tutor_id, created_at FROM programs WHERE id = $1`
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, id); err != nil {
		return nil, err
	}
	return &program, nil
}

// EnrolledStudents returns the active roster ordered by enrollment time.
func (r *ProgramRepository) EnrolledStudents(ctx context.Context, programID string) ([]models.RosterStudent, error) {
	const query = `SELECT pe.student_id, s.full_name
		FROM program_enrollments pe
		JOIN students s ON s.id = pe.student_id
		WHERE pe.program_id = $1 AND pe.status = 'active'
		ORDER BY pe.enrolled_at ASC, pe.student_id ASC`
	var students []models.RosterStudent
	if err := r.db.SelectContext(ctx, &students, query, programID); err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	return students, nil
}

// IsEnrolled reports whether the student is actively enrolled in the program.
func (r *ProgramRepository) IsEnrolled(ctx context.Context, programID, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM program_enrollments WHERE program_id = $1 AND student_id = $2 AND status = 'active')`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, programID, studentID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}
