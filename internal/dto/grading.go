package dto

// GradeRequest records a score for a submission.
type GradeRequest struct {
	Score    *int    `json:"score" validate:"required,gte=0"`
	Feedback *string `json:"feedback" validate:"omitempty,max=5000"`
	IsDraft  bool    `json:"is_draft"`
}

// QuickGradeRequest scores a submission as a percentage of total points.
type QuickGradeRequest struct {
	Percent *float64 `json:"percent" validate:"required,gte=0,lte=100"`
}
