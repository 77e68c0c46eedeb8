package models

import "time"

// AttendanceStatus represents the status for attendance entries.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate:
		return true
	default:
		return false
	}
}

// Attended reports whether the status counts towards the attendance rate.
func (s AttendanceStatus) Attended() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusLate
}

// AttendanceSession is one scheduled class meeting of a program.
type AttendanceSession struct {
	ID            string    `db:"id" json:"id"`
	ProgramID     string    `db:"program_id" json:"program_id"`
	ScheduledDate time.Time `db:"scheduled_date" json:"scheduled_date"`
	StartTime     string    `db:"start_time" json:"start_time"`
	EndTime       string    `db:"end_time" json:"end_time"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// AttendanceEntry is a single student's attendance for a session.
type AttendanceEntry struct {
	SessionID   string           `db:"session_id" json:"session_id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	StudentName string           `db:"student_name" json:"student_name"`
	Status      AttendanceStatus `db:"status" json:"status"`
	JoinedAt    *time.Time       `db:"joined_at" json:"joined_at,omitempty"`
}

// AttendanceSummary summarises counts for a session.
type AttendanceSummary struct {
	SessionID string  `json:"session_id"`
	Present   int     `json:"present_count"`
	Absent    int     `json:"absent_count"`
	Late      int     `json:"late_count"`
	Total     int     `json:"total_entries"`
	Rate      float64 `json:"rate"`
}

// AttendanceCounts is the raw per-status tally loaded from storage.
type AttendanceCounts struct {
	Present int `db:"present_count"`
	Absent  int `db:"absent_count"`
	Late    int `db:"late_count"`
	Total   int `db:"total_entries"`
}

// AttendanceReportRow is one flat line of a session report.
type AttendanceReportRow struct {
	StudentID   string           `db:"student_id" json:"student_id"`
	StudentName string           `db:"student_name" json:"student_name"`
	Status      AttendanceStatus `db:"status" json:"status"`
	JoinedAt    *time.Time       `db:"joined_at" json:"joined_at,omitempty"`
}
