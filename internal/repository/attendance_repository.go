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

// AttendanceRepository persists sessions and their fixed roster of entries.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// CreateSession inserts the session and one absent entry per student in one transaction.
func (r *AttendanceRepository) CreateSession(ctx context.Context, session *models.AttendanceSession, studentIDs []string) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const insertSession = `INSERT INTO attendance_sessions (id, program_id, scheduled_date, start_time, end_time, created_at)
			VALUES (:id, :program_id, :scheduled_date, :start_time, :end_time, :created_at)`
		if _, err := tx.NamedExecContext(ctx, insertSession, session); err != nil {
			return fmt.Errorf("insert attendance session: %w", err)
		}
		const insertEntry = `INSERT INTO attendance_entries (session_id, student_id, status, joined_at) VALUES ($1, $2, $3, NULL)`
		for _, studentID := range studentIDs {
			if _, err := tx.ExecContext(ctx, insertEntry, session.ID, studentID, string(models.AttendanceStatusAbsent)); err != nil {
				return fmt.Errorf("insert attendance entry: %w", err)
			}
		}
		return nil
	})
}

// GetSession loads a session by id.
func (r *AttendanceRepository) GetSession(ctx context.Context, id string) (*models.AttendanceSession, error) {
	const query = `SELECT id, program_id, scheduled_date, start_time, end_time, created_at FROM attendance_sessions WHERE id = $1`
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// SetStatus updates an existing entry and reports whether one matched.
func (r *AttendanceRepository) SetStatus(ctx context.Context, sessionID, studentID string, status models.AttendanceStatus, joinedAt *time.Time) (bool, error) {
	const query = `UPDATE attendance_entries SET status = $3, joined_at = $4 WHERE session_id = $1 AND student_id = $2`
	res, err := r.db.ExecContext(ctx, query, sessionID, studentID, string(status), joinedAt)
	if err != nil {
		return false, fmt.Errorf("set attendance status: %w", err)
	}
	return affected(res) > 0, nil
}

// MarkAllPresent flips every entry of the session to present in a single statement.
// Entries that already carry a joined_at keep it; the rest are stamped with at.
func (r *AttendanceRepository) MarkAllPresent(ctx context.Context, sessionID string, at time.Time) (int, error) {
	const query = `UPDATE attendance_entries SET status = $2, joined_at = COALESCE(joined_at, $3) WHERE session_id = $1`
	res, err := r.db.ExecContext(ctx, query, sessionID, string(models.AttendanceStatusPresent), at)
	if err != nil {
		return 0, fmt.Errorf("mark all present: %w", err)
	}
	return affected(res), nil
}

// Counts tallies entries of a session per status.
func (r *AttendanceRepository) Counts(ctx context.Context, sessionID string) (*models.AttendanceCounts, error) {
	const query = `SELECT
		COUNT(*) FILTER (WHERE status = 'present') AS present_count,
		COUNT(*) FILTER (WHERE status = 'absent') AS absent_count,
		COUNT(*) FILTER (WHERE status = 'late') AS late_count,
		COUNT(*) AS total_entries
		FROM attendance_entries WHERE session_id = $1`
	var counts models.AttendanceCounts
	if err := r.db.GetContext(ctx, &counts, query, sessionID); err != nil {
		return nil, fmt.Errorf("count attendance: %w", err)
	}
	return &counts, nil
}

// ListEntries returns every entry of the session with its student name, falling back to the
// student id when no student row exists.
func (r *AttendanceRepository) ListEntries(ctx context.Context, sessionID string) ([]models.AttendanceEntry, error) {
	const query = `SELECT e.session_id, e.student_id, COALESCE(s.full_name, e.student_id) AS student_name, e.status, e.joined_at
		FROM attendance_entries e
		LEFT JOIN students s ON s.id = e.student_id
		WHERE e.session_id = $1
		ORDER BY LOWER(COALESCE(s.full_name, e.student_id)) ASC, e.student_id ASC`
	var entries []models.AttendanceEntry
	if err := r.db.SelectContext(ctx, &entries, query, sessionID); err != nil {
		return nil, fmt.Errorf("list attendance entries: %w", err)
	}
	return entries, nil
}

// ReportRows returns flat report lines ordered by student name, case-insensitive.
func (r *AttendanceRepository) ReportRows(ctx context.Context, sessionID string) ([]models.AttendanceReportRow, error) {
	const query = `SELECT e.student_id, COALESCE(s.full_name, e.student_id) AS student_name, e.status, e.joined_at
		FROM attendance_entries e
		LEFT JOIN students s ON s.id = e.student_id
		WHERE e.session_id = $1
		ORDER BY LOWER(COALESCE(s.full_name, e.student_id)) ASC, e.student_id ASC`
	var rows []models.AttendanceReportRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("attendance report rows: %w", err)
	}
	return rows, nil
}
