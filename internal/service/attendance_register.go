package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-materials-api/internal/models"
	"github.com/noah-isme/tutor-materials-api/pkg/database"
	appErrors "github.com/noah-isme/tutor-materials-api/pkg/errors"
	"github.com/noah-isme/tutor-materials-api/pkg/export"
)

type attendanceStore interface {
	CreateSession(ctx context.Context, session *models.AttendanceSession, studentIDs []string) error
	GetSession(ctx context.Context, id string) (*models.AttendanceSession, error)
	SetStatus(ctx context.Context, sessionID, studentID string, status models.AttendanceStatus, joinedAt *time.Time) (bool, error)
	MarkAllPresent(ctx context.Context, sessionID string, at time.Time) (int, error)
	Counts(ctx context.Context, sessionID string) (*models.AttendanceCounts, error)
	ListEntries(ctx context.Context, sessionID string) ([]models.AttendanceEntry, error)
	ReportRows(ctx context.Context, sessionID string) ([]models.AttendanceReportRow, error)
}

const clockLayout = "15:04"

// CreateSessionRequest describes a class meeting to track.
type CreateSessionRequest struct {
	ProgramID     string
	ScheduledDate time.Time
	StartTime     string
	EndTime       string
}

// ReportDocument is a rendered attendance report.
type ReportDocument struct {
	Filename    string
	ContentType string
	Body        []byte
}

// AttendanceRegister owns sessions and the per-student entries seeded from the roster.
type AttendanceRegister struct {
	store  attendanceStore
	roster rosterProvider
	logger *zap.Logger
	now    func() time.Time
}

// NewAttendanceRegister constructs the register.
func NewAttendanceRegister(store attendanceStore, roster rosterProvider, logger *zap.Logger) *AttendanceRegister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceRegister{store: store, roster: roster, logger: logger, now: time.Now}
}

// CreateSession stores the session with one absent entry per currently enrolled student.
func (r *AttendanceRegister) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.AttendanceSession, error) {
	if req.ProgramID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "program_id is required")
	}
	if req.ScheduledDate.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_date is required")
	}
	start, err := time.Parse(clockLayout, req.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM")
	}
	end, err := time.Parse(clockLayout, req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM")
	}
	if !end.After(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	students, err := r.roster.EnrolledStudents(ctx, req.ProgramID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load roster")
	}
	ids := make([]string, 0, len(students))
	seen := make(map[string]struct{}, len(students))
	for _, s := range students {
		if _, dup := seen[s.StudentID]; dup {
			continue
		}
		seen[s.StudentID] = struct{}{}
		ids = append(ids, s.StudentID)
	}

	y, m, d := req.ScheduledDate.Date()
	session := &models.AttendanceSession{
		ProgramID:     req.ProgramID,
		ScheduledDate: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		StartTime:     start.Format(clockLayout),
		EndTime:       end.Format(clockLayout),
		CreatedAt:     r.now().UTC(),
	}
	if err := r.store.CreateSession(ctx, session, ids); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "attendance session already exists")
		}
		return nil, appErrors.Internal(err, "failed to create attendance session")
	}
	r.logger.Info("attendance session created",
		zap.String("session_id", session.ID),
		zap.String("program_id", session.ProgramID),
		zap.Int("entries", len(ids)),
	)
	return session, nil
}

// GetSession returns a session by id.
func (r *AttendanceRegister) GetSession(ctx context.Context, sessionID string) (*models.AttendanceSession, error) {
	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance session not found")
		}
		return nil, appErrors.Internal(err, "failed to load attendance session")
	}
	return session, nil
}

// SetStatus updates one seeded entry. Present and late require joinedAt; absent clears it.
func (r *AttendanceRegister) SetStatus(ctx context.Context, sessionID, studentID string, status models.AttendanceStatus, joinedAt *time.Time) error {
	if !status.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported attendance status")
	}
	if status.Attended() {
		if joinedAt == nil || joinedAt.IsZero() {
			return appErrors.Clone(appErrors.ErrValidation, "joined_at is required for present or late")
		}
		at := joinedAt.UTC()
		joinedAt = &at
	} else {
		joinedAt = nil
	}
	ok, err := r.store.SetStatus(ctx, sessionID, studentID, status, joinedAt)
	if err != nil {
		return appErrors.Internal(err, "failed to update attendance")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "attendance entry not found")
	}
	return nil
}

// MarkAllPresent sets every entry of the session to present as one batch. Entries that
// already have a joined_at keep it; the others are stamped with the current time.
func (r *AttendanceRegister) MarkAllPresent(ctx context.Context, sessionID string) (int, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return 0, err
	}
	updated, err := r.store.MarkAllPresent(ctx, sessionID, r.now().UTC())
	if err != nil {
		return 0, appErrors.Internal(err, "failed to mark all present")
	}
	return updated, nil
}

// Summary counts the session entries per status. The rate is the share of present or late
// entries in percent, rounded to one decimal, and 0 for an empty session.
func (r *AttendanceRegister) Summary(ctx context.Context, sessionID string) (*models.AttendanceSummary, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	counts, err := r.store.Counts(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to count attendance")
	}
	return summarize(sessionID, *counts), nil
}

func summarize(sessionID string, counts models.AttendanceCounts) *models.AttendanceSummary {
	summary := &models.AttendanceSummary{
		SessionID: sessionID,
		Present:   counts.Present,
		Absent:    counts.Absent,
		Late:      counts.Late,
		Total:     counts.Total,
	}
	if counts.Total > 0 {
		rate := float64(counts.Present+counts.Late) / float64(counts.Total) * 100
		summary.Rate = math.Round(rate*10) / 10
	}
	return summary
}

// ListEntries returns the session entries with student names.
func (r *AttendanceRegister) ListEntries(ctx context.Context, sessionID string) ([]models.AttendanceEntry, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	entries, err := r.store.ListEntries(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list attendance entries")
	}
	return entries, nil
}

// ExportReport returns the report rows ordered by student name, case-insensitive, with the
// student id breaking ties.
func (r *AttendanceRegister) ExportReport(ctx context.Context, sessionID string) ([]models.AttendanceReportRow, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return r.reportRows(ctx, sessionID)
}

func (r *AttendanceRegister) reportRows(ctx context.Context, sessionID string) ([]models.AttendanceReportRow, error) {
	rows, err := r.store.ReportRows(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load attendance report")
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := strings.ToLower(rows[i].StudentName), strings.ToLower(rows[j].StudentName)
		if a != b {
			return a < b
		}
		return rows[i].StudentID < rows[j].StudentID
	})
	return rows, nil
}

// RenderReport renders the session report as CSV or PDF.
func (r *AttendanceRegister) RenderReport(ctx context.Context, sessionID, format string) (*ReportDocument, error) {
	exporter, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported report format")
	}
	session, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := r.reportRows(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	date := session.ScheduledDate.Format("2006-01-02")
	dataset := export.Dataset{
		Title:   fmt.Sprintf("Attendance %s %s-%s", date, session.StartTime, session.EndTime),
		Headers: []string{"Student", "Status", "Joined At"},
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, row := range rows {
		joined := ""
		if row.JoinedAt != nil {
			joined = row.JoinedAt.UTC().Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, []string{row.StudentName, string(row.Status), joined})
	}
	body, err := exporter.Render(dataset)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render attendance report")
	}
	return &ReportDocument{
		Filename:    fmt.Sprintf("attendance-%s%s", date, exporter.Extension()),
		ContentType: exporter.ContentType(),
		Body:        body,
	}, nil
}
