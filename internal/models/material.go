package models

import "time"

// MaterialType enumerates the kinds of content a tutor can publish.
type MaterialType string

const (
	MaterialTypeDocument   MaterialType = "document"
	MaterialTypeVideo      MaterialType = "video"
	MaterialTypeImage      MaterialType = "image"
	MaterialTypeSlides     MaterialType = "slides"
	MaterialTypeAssignment MaterialType = "assignment"
	MaterialTypeAssessment MaterialType = "assessment"
	MaterialTypeOther      MaterialType = "other"
)

// Valid returns true when the type is a supported value.
func (t MaterialType) Valid() bool {
	switch t {
	case MaterialTypeDocument, MaterialTypeVideo, MaterialTypeImage, MaterialTypeSlides,
		MaterialTypeAssignment, MaterialTypeAssessment, MaterialTypeOther:
		return true
	default:
		return false
	}
}

// IsAssignment reports whether the type accepts student submissions.
func (t MaterialType) IsAssignment() bool {
	return t == MaterialTypeAssignment || t == MaterialTypeAssessment
}

// Category maps the type onto one of the three listing tabs.
func (t MaterialType) Category() MaterialCategory {
	switch {
	case t.IsAssignment():
		return CategoryAssignments
	case t == MaterialTypeVideo:
		return CategoryVideos
	default:
		return CategoryDocuments
	}
}

// MaterialCategory groups material types for listing filters.
type MaterialCategory string

const (
	CategoryAssignments MaterialCategory = "assignments"
	CategoryVideos      MaterialCategory = "videos"
	CategoryDocuments   MaterialCategory = "documents"
)

// Valid returns true when the category is a supported value.
func (c MaterialCategory) Valid() bool {
	switch c {
	case CategoryAssignments, CategoryVideos, CategoryDocuments:
		return true
	default:
		return false
	}
}

// Types lists the material types belonging to the category.
func (c MaterialCategory) Types() []MaterialType {
	switch c {
	case CategoryAssignments:
		return []MaterialType{MaterialTypeAssignment, MaterialTypeAssessment}
	case CategoryVideos:
		return []MaterialType{MaterialTypeVideo}
	case CategoryDocuments:
		return []MaterialType{MaterialTypeDocument, MaterialTypeImage, MaterialTypeSlides, MaterialTypeOther}
	default:
		return nil
	}
}

// BlobRef is an opaque handle to file bytes held by the blob store.
type BlobRef struct {
	ID           string `json:"id"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mime_type"`
	OriginalName string `json:"original_name"`
}

// IsZero reports whether the reference points at nothing.
func (b BlobRef) IsZero() bool {
	return b.ID == ""
}

// AssignmentConfig carries due date, points and late policy of assignment-type materials.
type AssignmentConfig struct {
	DueAt       *time.Time `json:"due_at,omitempty"`
	TotalPoints int        `json:"total_points"`
	AllowLate   bool       `json:"allow_late"`
}

// IsPastDue returns true when a due date is set and at is after it.
func (c AssignmentConfig) IsPastDue(at time.Time) bool {
	return c.DueAt != nil && at.After(*c.DueAt)
}

// Material is a single piece of published program content.
type Material struct {
	ID          string            `json:"id"`
	ProgramID   string            `json:"program_id"`
	Title       string            `json:"title"`
	Description *string           `json:"description,omitempty"`
	Type        MaterialType      `json:"type"`
	IsRequired  bool              `json:"is_required"`
	SortOrder   int               `json:"sort_order"`
	Blob        BlobRef           `json:"blob"`
	Assignment  *AssignmentConfig `json:"assignment,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CreatedBy   string            `json:"created_by"`
}

// MaterialPatch lists the mutable fields of a material; nil fields are left untouched.
type MaterialPatch struct {
	Title       *string       `json:"title,omitempty"`
	Description *string       `json:"description,omitempty"`
	IsRequired  *bool         `json:"is_required,omitempty"`
	SortOrder   *int          `json:"sort_order,omitempty"`
	Type        *MaterialType `json:"type,omitempty"`
}

// MaterialFilter scopes listing queries.
type MaterialFilter struct {
	ProgramID string
	Category  MaterialCategory
}

// DeletedMaterial reports what a cascade delete removed.
type DeletedMaterial struct {
	MaterialID       string    `json:"material_id"`
	SubmissionsCount int       `json:"submissions_count"`
	GradesCount      int       `json:"grades_count"`
	Blobs            []BlobRef `json:"-"`
}
