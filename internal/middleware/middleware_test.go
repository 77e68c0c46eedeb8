package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-materials-api/internal/models"
	"github.com/noah-isme/tutor-materials-api/internal/service"
	appErrors "github.com/noah-isme/tutor-materials-api/pkg/errors"
	"github.com/noah-isme/tutor-materials-api/pkg/logger"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

type auditSink struct {
	logs []*models.AuditLog
}

func (s *auditSink) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/sessions/:id/report", handlers...)
	return router
}

func serve(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions/sess-1/report?format=csv", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	req.Header.Set("User-Agent", "report-bot")
	router.ServeHTTP(w, req)
	return w
}

func ok(c *gin.Context) {
	c.Status(http.StatusOK)
}

func TestJWTMiddleware(t *testing.T) {
	tutor := &models.JWTClaims{UserID: "tutor-1", Role: models.RoleTutor}

	var seen *models.JWTClaims
	var principal string
	router := newRouter(JWT(validatorStub{claims: tutor}), func(c *gin.Context) {
		value, _ := c.Get(ContextUserKey)
		seen, _ = value.(*models.JWTClaims)
		principal = c.GetString(logger.PrincipalKey)
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusUnauthorized, serve(router, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Bearer bad").Code)
	assert.Nil(t, seen)

	w := serve(router, "Bearer good")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tutor, seen)
	assert.Equal(t, "tutor-1", principal)
}

func TestJWTMiddlewareRejectsUnknownRole(t *testing.T) {
	router := newRouter(JWT(validatorStub{claims: &models.JWTClaims{UserID: "x", Role: "PARENT"}}), ok)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Bearer good").Code)
}

func TestRequireRoles(t *testing.T) {
	student := &models.JWTClaims{UserID: "stu-01", Role: models.RoleStudent}
	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

	router := newRouter(JWT(validatorStub{claims: student}), RequireRoles(models.RoleTutor, models.RoleAdmin), ok)
	w := serve(router, "Bearer good")
	require.Equal(t, http.StatusForbidden, w.Code)
	var env struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	router = newRouter(JWT(validatorStub{claims: admin}), RequireRoles(models.RoleTutor, models.RoleAdmin), ok)
	assert.Equal(t, http.StatusOK, serve(router, "Bearer good").Code)

	router = newRouter(RequireRoles(models.RoleTutor), ok)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "").Code)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	sink := &auditSink{}
	tutor := &models.JWTClaims{UserID: "tutor-1", Role: models.RoleTutor}
	router := newRouter(JWT(validatorStub{claims: tutor}), Audit(sink, models.AuditActionReportExport, "attendance_session", "id"), ok)

	require.Equal(t, http.StatusOK, serve(router, "Bearer good").Code)
	require.Len(t, sink.logs, 1)

	log := sink.logs[0]
	assert.Equal(t, models.AuditActionReportExport, log.Action)
	assert.Equal(t, "attendance_session", log.Resource)
	require.NotNil(t, log.UserID)
	assert.Equal(t, "tutor-1", *log.UserID)
	require.NotNil(t, log.ResourceID)
	assert.Equal(t, "sess-1", *log.ResourceID)
	assert.Equal(t, "report-bot", log.UserAgent)

	var values map[string]interface{}
	require.NoError(t, json.Unmarshal(log.NewValues, &values))
	assert.Equal(t, "/sessions/:id/report", values["path"])
	assert.Equal(t, "format=csv", values["query"])
}

func TestAuditSkipsFailedRequests(t *testing.T) {
	sink := &auditSink{}
	router := newRouter(Audit(sink, models.AuditActionReportExport, "attendance_session", "id"), func(c *gin.Context) {
		c.Status(http.StatusForbidden)
	})

	serve(router, "")
	assert.Empty(t, sink.logs)
}

func TestResponseMeta(t *testing.T) {
	var meta map[string]interface{}
	router := newRouter(WithResponseMeta(), func(c *gin.Context) {
		SetMeta(c, "count", 3)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	serve(router, "")
	require.NotNil(t, meta)
	assert.Equal(t, 3, meta["count"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestMetricsUsesRouteTemplates(t *testing.T) {
	metrics := service.NewMetricsService()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Metrics(metrics, "/health"))
	router.GET("/health", ok)
	router.GET("/materials/:id", ok)

	for _, path := range []string{"/materials/m-1", "/materials/m-2", "/health", "/nope"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	paths := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "path" {
					paths[label.GetValue()] += m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"/materials/:id": 2, "unmatched": 1}, paths)
}
