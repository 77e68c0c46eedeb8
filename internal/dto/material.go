package dto

import (
	"time"

	"github.com/noah-isme/tutor-materials-api/internal/models"
)

// UploadMaterialForm carries the multipart fields sent alongside a material file.
type UploadMaterialForm struct {
	Type        string     `form:"type" validate:"required,oneof=document video image slides assignment assessment other"`
	Title       string     `form:"title" validate:"required,max=200"`
	Description *string    `form:"description" validate:"omitempty,max=2000"`
	IsRequired  bool       `form:"is_required"`
	SortOrder   int        `form:"sort_order" validate:"gte=0"`
	DueAt       *time.Time `form:"due_at" time_format:"2006-01-02T15:04:05Z07:00"`
	TotalPoints *int       `form:"total_points" validate:"omitempty,gt=0"`
	AllowLate   bool       `form:"allow_late"`
}

// Assignment returns the assignment settings when any were supplied.
func (f UploadMaterialForm) Assignment() *models.AssignmentConfig {
	if f.TotalPoints == nil && f.DueAt == nil {
		return nil
	}
	cfg := &models.AssignmentConfig{DueAt: f.DueAt, AllowLate: f.AllowLate}
	if f.TotalPoints != nil {
		cfg.TotalPoints = *f.TotalPoints
	}
	return cfg
}

// UpdateMaterialForm lists the editable fields; absent fields are left untouched.
type UpdateMaterialForm struct {
	Title       *string `form:"title" json:"title" validate:"omitempty,max=200"`
	Description *string `form:"description" json:"description" validate:"omitempty,max=2000"`
	IsRequired  *bool   `form:"is_required" json:"is_required"`
	SortOrder   *int    `form:"sort_order" json:"sort_order" validate:"omitempty,gte=0"`
	Type        *string `form:"type" json:"type"`
}

// Patch converts the form into a material patch.
func (f UpdateMaterialForm) Patch() models.MaterialPatch {
	patch := models.MaterialPatch{
		Title:       f.Title,
		Description: f.Description,
		IsRequired:  f.IsRequired,
		SortOrder:   f.SortOrder,
	}
	if f.Type != nil {
		t := models.MaterialType(*f.Type)
		patch.Type = &t
	}
	return patch
}

// DeleteMaterialRequest must carry confirm=true.
type DeleteMaterialRequest struct {
	Confirm bool `json:"confirm" form:"confirm"`
}
