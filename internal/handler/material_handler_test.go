package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-materials-api/internal/middleware"
	"github.com/noah-isme/tutor-materials-api/internal/models"
	"github.com/noah-isme/tutor-materials-api/internal/service"
	appErrors "github.com/noah-isme/tutor-materials-api/pkg/errors"
)

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func newMultipartContext(t *testing.T, method, path string, fields map[string]string, filename, content string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.Request = req
	return c, w
}

func asTutor(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "tutor-1", Role: models.RoleTutor})
}

func asStudent(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu-01", Role: models.RoleStudent})
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type materialServiceStub struct {
	listCategory models.MaterialCategory
	listResp     []models.Material
	upload       *service.UploadMaterialInput
	uploadBody   string
	patch        *models.MaterialPatch
	patchFile    *service.FileUpload
	confirmed    bool
	err          error
}

func (s *materialServiceStub) ListMaterials(ctx context.Context, actor models.Principal, programID string, category models.MaterialCategory) ([]models.Material, error) {
	s.listCategory = category
	return s.listResp, s.err
}

func (s *materialServiceStub) GetMaterial(ctx context.Context, actor models.Principal, materialID string) (*models.Material, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Material{ID: materialID}, nil
}

func (s *materialServiceStub) UploadMaterial(ctx context.Context, actor models.Principal, input service.UploadMaterialInput) (*models.Material, error) {
	s.upload = &input
	body, _ := io.ReadAll(input.File.Content)
	s.uploadBody = string(body)
	if s.err != nil {
		return nil, s.err
	}
	return &models.Material{ID: "mat-1", ProgramID: input.ProgramID, Title: input.Title, Type: input.Type}, nil
}

func (s *materialServiceStub) UpdateMaterial(ctx context.Context, actor models.Principal, materialID string, patch models.MaterialPatch, file *service.FileUpload) (*models.Material, error) {
	s.patch = &patch
	s.patchFile = file
	return &models.Material{ID: materialID}, s.err
}

func (s *materialServiceStub) DeleteMaterial(ctx context.Context, actor models.Principal, materialID string, confirmed bool) (*models.DeletedMaterial, error) {
	s.confirmed = confirmed
	if !confirmed {
		return nil, appErrors.Clone(appErrors.ErrValidation, "deletion must be confirmed")
	}
	return &models.DeletedMaterial{MaterialID: materialID, SubmissionsCount: 2, GradesCount: 1}, nil
}

func (s *materialServiceStub) MaterialDownload(ctx context.Context, actor models.Principal, materialID string) (*service.DownloadLink, error) {
	return &service.DownloadLink{URL: "/api/v1/files/blob-1?token=t"}, s.err
}

func TestMaterialHandlerUpload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &materialServiceStub{}
	h := NewMaterialHandler(svc, nil)

	c, w := newMultipartContext(t, http.MethodPost, "/programs/prog-1/materials", map[string]string{
		"type":         "assignment",
		"title":        "Essay 1",
		"total_points": "40",
		"due_at":       "2026-03-01T09:00:00Z",
		"allow_late":   "true",
	}, "essay.pdf", "%PDF-1.4")
	c.Params = gin.Params{{Key: "programId", Value: "prog-1"}}
	asTutor(c)

	h.Upload(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, svc.upload)
	assert.Equal(t, "prog-1", svc.upload.ProgramID)
	assert.Equal(t, models.MaterialTypeAssignment, svc.upload.Type)
	require.NotNil(t, svc.upload.Assignment)
	assert.Equal(t, 40, svc.upload.Assignment.TotalPoints)
	assert.True(t, svc.upload.Assignment.AllowLate)
	require.NotNil(t, svc.upload.Assignment.DueAt)
	assert.Equal(t, 9, svc.upload.Assignment.DueAt.UTC().Hour())
	assert.Equal(t, "essay.pdf", svc.upload.File.Filename)
	assert.Equal(t, "%PDF-1.4", svc.uploadBody)
}

func TestMaterialHandlerUploadValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name     string
		fields   map[string]string
		filename string
	}{
		{name: "unknown type", fields: map[string]string{"type": "podcast", "title": "x"}, filename: "a.pdf"},
		{name: "missing title", fields: map[string]string{"type": "document"}, filename: "a.pdf"},
		{name: "missing file", fields: map[string]string{"type": "document", "title": "Notes"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &materialServiceStub{}
			h := NewMaterialHandler(svc, nil)
			c, w := newMultipartContext(t, http.MethodPost, "/programs/prog-1/materials", tc.fields, tc.filename, "body")
			asTutor(c)

			h.Upload(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Nil(t, svc.upload)
		})
	}
}

func TestMaterialHandlerRequiresPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMaterialHandler(&materialServiceStub{}, nil)

	c, w := newGinContext(http.MethodGet, "/programs/prog-1/materials", nil)
	h.List(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMaterialHandlerListPassesCategory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &materialServiceStub{listResp: []models.Material{{ID: "m-1"}, {ID: "m-2"}}}
	h := NewMaterialHandler(svc, nil)

	c, w := newGinContext(http.MethodGet, "/programs/prog-1/materials?category=Videos", nil)
	c.Params = gin.Params{{Key: "programId", Value: "prog-1"}}
	middleware.WithResponseMeta()(c)
	asStudent(c)

	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.CategoryVideos, svc.listCategory)
	env := decode(t, w)
	assert.EqualValues(t, 2, env.Meta["count"])
	assert.Contains(t, env.Meta, "processing_time_ms")
}

func TestMaterialHandlerMapsServiceErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMaterialHandler(&materialServiceStub{err: appErrors.Clone(appErrors.ErrForbidden, "not your program")}, nil)

	c, w := newGinContext(http.MethodGet, "/materials/m-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "m-1"}}
	asStudent(c)

	h.Get(c)

	require.Equal(t, http.StatusForbidden, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not your program", env.Error.Message)
}

func TestMaterialHandlerUpdateJSONAndMultipart(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := &materialServiceStub{}
	h := NewMaterialHandler(svc, nil)
	c, w := newGinContext(http.MethodPatch, "/materials/m-1", []byte(`{"title":"Week 2","sort_order":3}`))
	c.Params = gin.Params{{Key: "id", Value: "m-1"}}
	asTutor(c)
	h.Update(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.patch)
	assert.Equal(t, "Week 2", *svc.patch.Title)
	assert.Equal(t, 3, *svc.patch.SortOrder)
	assert.Nil(t, svc.patch.IsRequired)
	assert.Nil(t, svc.patchFile)

	svc = &materialServiceStub{}
	h = NewMaterialHandler(svc, nil)
	c, w = newMultipartContext(t, http.MethodPatch, "/materials/m-1", map[string]string{"title": "Week 2"}, "week2.pdf", "%PDF")
	c.Params = gin.Params{{Key: "id", Value: "m-1"}}
	asTutor(c)
	h.Update(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.patchFile)
	assert.Equal(t, "week2.pdf", svc.patchFile.Filename)
}

func TestMaterialHandlerDeleteRequiresConfirm(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &materialServiceStub{}
	h := NewMaterialHandler(svc, nil)

	c, w := newGinContext(http.MethodDelete, "/materials/m-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "m-1"}}
	asTutor(c)
	h.Delete(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, svc.confirmed)

	c, w = newGinContext(http.MethodDelete, "/materials/m-1?confirm=true", nil)
	c.Params = gin.Params{{Key: "id", Value: "m-1"}}
	asTutor(c)
	h.Delete(c)
	require.Equal(t, http.StatusOK, w.Code)

	var report struct {
		Data models.DeletedMaterial `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Data.SubmissionsCount)
	assert.Equal(t, 1, report.Data.GradesCount)
}

func TestMaterialHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMaterialHandler(&materialServiceStub{}, nil)

	c, w := newGinContext(http.MethodGet, "/materials/m-1/download", nil)
	c.Params = gin.Params{{Key: "id", Value: "m-1"}}
	asStudent(c)
	h.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/files/blob-1?token=t")
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
