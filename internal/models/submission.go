package models

import (
	"errors"
	"time"
)

// ErrSubmissionGraded is returned by stores when a write targets a submission with a published grade.
var ErrSubmissionGraded = errors.New("submission has a published grade")

// SubmissionStatus is derived from the presence of a published grade.
type SubmissionStatus string

const (
	SubmissionStatusNotSubmitted SubmissionStatus = "not_submitted"
	SubmissionStatusSubmitted    SubmissionStatus = "submitted"
	SubmissionStatusGraded       SubmissionStatus = "graded"
)

// Submission is a student's uploaded response to an assignment-type material.
type Submission struct {
	ID          string           `json:"id"`
	MaterialID  string           `json:"material_id"`
	StudentID   string           `json:"student_id"`
	File        BlobRef          `json:"file"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Status      SubmissionStatus `json:"status"`
	IsLate      bool             `json:"is_late"`
	Grade       *Grade           `json:"grade,omitempty"`
}

// SubmissionSummary aggregates submission and grading counters for a material.
type SubmissionSummary struct {
	MaterialID     string  `json:"material_id"`
	SubmittedCount int     `json:"submitted_count"`
	EnrolledCount  int     `json:"enrolled_count"`
	GradedCount    int     `json:"graded_count"`
	AverageScore   float64 `json:"average_score"`
}

// SubmitResult carries the stored submission and the file it replaced, if any.
type SubmitResult struct {
	Submission *Submission
	Replaced   *BlobRef
}
