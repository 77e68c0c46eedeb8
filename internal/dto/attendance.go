package dto

import "time"

// CreateSessionRequest opens an attendance session.
type CreateSessionRequest struct {
	ScheduledDate string `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	StartTime     string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime       string `json:"end_time" validate:"required,datetime=15:04"`
}

// AttendanceStatusRequest sets one student's status.
type AttendanceStatusRequest struct {
	Status   string     `json:"status" validate:"required,oneof=present absent late"`
	JoinedAt *time.Time `json:"joined_at"`
}
