package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-materials-api/internal/models"
	appErrors "github.com/noah-isme/tutor-materials-api/pkg/errors"
)

type materialStore interface {
	Create(ctx context.Context, material *models.Material) error
	GetByID(ctx context.Context, id string) (*models.Material, error)
	List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, error)
	Update(ctx context.Context, material *models.Material, newBlob *models.BlobRef) (*models.BlobRef, error)
	Delete(ctx context.Context, id string) (*models.DeletedMaterial, error)
}

type blobReleaser interface {
	Release(ctx context.Context, ref models.BlobRef) error
}

// CreateMaterialRequest carries the fields of a new material.
type CreateMaterialRequest struct {
	ProgramID   string
	Type        models.MaterialType
	Title       string
	Description *string
	IsRequired  bool
	SortOrder   int
	Blob        models.BlobRef
	Assignment  *models.AssignmentConfig
	CreatedBy   string
}

// MaterialCatalog owns material records and their binding to a blob.
type MaterialCatalog struct {
	store    materialStore
	releaser blobReleaser
	logger   *zap.Logger
	now      func() time.Time
}

// NewMaterialCatalog constructs the catalog.
func NewMaterialCatalog(store materialStore, releaser blobReleaser, logger *zap.Logger) *MaterialCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaterialCatalog{store: store, releaser: releaser, logger: logger, now: time.Now}
}

// Create validates and persists a material with its optional assignment configuration.
func (c *MaterialCatalog) Create(ctx context.Context, req CreateMaterialRequest) (*models.Material, error) {
	title := strings.TrimSpace(req.Title)
	switch {
	case req.ProgramID == "":
		return nil, appErrors.Clone(appErrors.ErrValidation, "program_id is required")
	case !req.Type.Valid():
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported material type")
	case title == "":
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
	case req.Blob.IsZero():
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if req.Type.IsAssignment() {
		if req.Assignment == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "assignment settings are required for this type")
		}
		if req.Assignment.TotalPoints <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "total_points must be greater than zero")
		}
	} else if req.Assignment != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignment settings are only allowed for assignment types")
	}

	now := c.now().UTC()
	material := &models.Material{
		ProgramID:   req.ProgramID,
		Title:       title,
		Description: trimOptional(req.Description),
		Type:        req.Type,
		IsRequired:  req.IsRequired,
		SortOrder:   req.SortOrder,
		Blob:        req.Blob,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Assignment != nil {
		cfg := *req.Assignment
		if cfg.DueAt != nil {
			due := cfg.DueAt.UTC()
			cfg.DueAt = &due
		}
		material.Assignment = &cfg
	}

	if err := c.store.Create(ctx, material); err != nil {
		return nil, appErrors.Internal(err, "failed to create material")
	}
	return material, nil
}

// Get returns a material by id.
func (c *MaterialCatalog) Get(ctx context.Context, id string) (*models.Material, error) {
	material, err := c.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, appErrors.Internal(err, "failed to load material")
	}
	return material, nil
}

// List returns program materials newest first.
func (c *MaterialCatalog) List(ctx context.Context, programID string, category models.MaterialCategory) ([]models.Material, error) {
	if category != "" && !category.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported category")
	}
	items, err := c.store.List(ctx, models.MaterialFilter{ProgramID: programID, Category: category})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list materials")
	}
	return items, nil
}

// Update applies the patch and optionally swaps the blob. A patch that changes nothing and
// carries no new blob leaves the stored row untouched. The replaced blob is released only
// after the swap has committed.
func (c *MaterialCatalog) Update(ctx context.Context, id string, patch models.MaterialPatch, newBlob *models.BlobRef) (*models.Material, error) {
	material, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Type != nil && *patch.Type != material.Type {
		return nil, appErrors.Clone(appErrors.ErrValidation, "material type cannot be changed")
	}
	if newBlob != nil && newBlob.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "replacement file is empty")
	}

	changed := false
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
		}
		if title != material.Title {
			material.Title = title
			changed = true
		}
	}
	if patch.Description != nil {
		desc := trimOptional(patch.Description)
		if !sameOptional(desc, material.Description) {
			material.Description = desc
			changed = true
		}
	}
	if patch.IsRequired != nil && *patch.IsRequired != material.IsRequired {
		material.IsRequired = *patch.IsRequired
		changed = true
	}
	if patch.SortOrder != nil && *patch.SortOrder != material.SortOrder {
		material.SortOrder = *patch.SortOrder
		changed = true
	}
	if newBlob != nil && newBlob.ID == material.Blob.ID {
		newBlob = nil
	}
	if !changed && newBlob == nil {
		return material, nil
	}

	material.UpdatedAt = c.now().UTC()
	replaced, err := c.store.Update(ctx, material, newBlob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, appErrors.Internal(err, "failed to update material")
	}
	if replaced != nil {
		c.release(ctx, *replaced)
	}
	return material, nil
}

// Delete removes the material with its assignment configuration, submissions and grades,
// then releases every blob they referenced exactly once.
func (c *MaterialCatalog) Delete(ctx context.Context, id string) (*models.DeletedMaterial, error) {
	report, err := c.store.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, appErrors.Internal(err, "failed to delete material")
	}
	seen := make(map[string]struct{}, len(report.Blobs))
	for _, ref := range report.Blobs {
		if ref.IsZero() {
			continue
		}
		if _, dup := seen[ref.ID]; dup {
			continue
		}
		seen[ref.ID] = struct{}{}
		c.release(ctx, ref)
	}
	return report, nil
}

// release hands a blob back to the store. Failures are logged, never returned.
func (c *MaterialCatalog) release(ctx context.Context, ref models.BlobRef) {
	if c.releaser == nil {
		return
	}
	if err := c.releaser.Release(ctx, ref); err != nil {
		c.logger.Warn("blob release failed", zap.String("blob_id", ref.ID), zap.Error(err))
	}
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func sameOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
