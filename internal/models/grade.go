package models

import "time"

// LetterGrade is the letter derived from a score's share of total points.
type LetterGrade string

const (
	LetterA LetterGrade = "A"
	LetterB LetterGrade = "B"
	LetterC LetterGrade = "C"
	LetterD LetterGrade = "D"
	LetterF LetterGrade = "F"
)

// Grade is the scoring and feedback record attached to one submission.
type Grade struct {
	SubmissionID string      `db:"submission_id" json:"submission_id"`
	Score        int         `db:"score" json:"score"`
	Letter       LetterGrade `db:"letter" json:"letter"`
	Feedback     *string     `db:"feedback" json:"feedback,omitempty"`
	GradedAt     time.Time   `db:"graded_at" json:"graded_at"`
	GradedBy     string      `db:"graded_by" json:"graded_by"`
	IsDraft      bool        `db:"is_draft" json:"is_draft"`
}

// GradeStats holds the non-draft grade aggregate of a material.
type GradeStats struct {
	Count    int   `db:"graded_count"`
	ScoreSum int64 `db:"score_sum"`
}
