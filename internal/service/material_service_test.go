package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-materials-api/internal/models"
	appErrors "github.com/noah-isme/tutor-materials-api/pkg/errors"
)

var (
	tutor      = models.Principal{UserID: "tutor-1", Role: models.RoleTutor}
	otherTutor = models.Principal{UserID: "tutor-2", Role: models.RoleTutor}
	admin      = models.Principal{UserID: "admin-1", Role: models.RoleAdmin}
	student    = models.Principal{UserID: "stu-01", Role: models.RoleStudent}
	outsider   = models.Principal{UserID: "stu-77", Role: models.RoleStudent}
)

func newServiceEnv() *testEnv {
	env := newTestEnv()
	env.db.addProgram("prog-1", "tutor-1", roster(3)...)
	return env
}

func uploadAssignment(t *testing.T, env *testEnv, due time.Time) *models.Material {
	t.Helper()
	material, err := env.svc.UploadMaterial(context.Background(), tutor, UploadMaterialInput{
		ProgramID:  "prog-1",
		Type:       models.MaterialTypeAssignment,
		Title:      "Essay",
		Assignment: &models.AssignmentConfig{DueAt: &due, TotalPoints: 100},
		File:       textFile("essay.txt", "write about rivers"),
	})
	require.NoError(t, err)
	return material
}

func TestMaterialServiceUploadStoresFileAndAudits(t *testing.T) {
	env := newServiceEnv()
	material, err := env.svc.UploadMaterial(context.Background(), tutor, UploadMaterialInput{
		ProgramID: "prog-1",
		Type:      models.MaterialTypeDocument,
		Title:     "Week 1",
		File:      textFile("week1.txt", "hello"),
	})
	require.NoError(t, err)

	assert.Equal(t, "tutor-1", material.CreatedBy)
	assert.Equal(t, int64(5), material.Blob.Size)
	assert.Equal(t, "text/plain", material.Blob.MimeType)
	assert.Contains(t, env.blobs.stored, material.Blob.ID)
	assert.Equal(t, []string{models.AuditActionMaterialUpload}, env.audit.actions())
	assert.Equal(t, "system", env.audit.logs[0].IPAddress)
}

func TestMaterialServiceUploadRejectsForeignTutor(t *testing.T) {
	env := newServiceEnv()
	_, err := env.svc.UploadMaterial(context.Background(), otherTutor, UploadMaterialInput{
		ProgramID: "prog-1",
		Type:      models.MaterialTypeDocument,
		Title:     "Week 1",
		File:      textFile("week1.txt", "hello"),
	})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Empty(t, env.blobs.stored)
	assert.Empty(t, env.db.materials)
}

func TestMaterialServiceUploadReleasesBlobOnInvalidMaterial(t *testing.T) {
	env := newServiceEnv()
	_, err := env.svc.UploadMaterial(context.Background(), tutor, UploadMaterialInput{
		ProgramID: "prog-1",
		Type:      models.MaterialTypeAssignment,
		Title:     "Essay",
		File:      textFile("essay.txt", "prompt"),
	})
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, env.blobs.stored)
	assert.Equal(t, 1, env.blobs.totalReleases())
}

func TestMaterialServiceUploadPolicy(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()

	big := textFile("big.txt", strings.Repeat("a", 2048))
	_, err := env.svc.UploadMaterial(ctx, tutor, UploadMaterialInput{ProgramID: "prog-1", Type: models.MaterialTypeDocument, Title: "Big", File: big})
	require.ErrorIs(t, err, appErrors.ErrValidation)

	exe := FileUpload{Filename: "tool.exe", Size: 4, MimeType: "application/x-msdownload", Content: strings.NewReader("MZ\x90\x00")}
	_, err = env.svc.UploadMaterial(ctx, tutor, UploadMaterialInput{ProgramID: "prog-1", Type: models.MaterialTypeDocument, Title: "Tool", File: exe})
	require.ErrorIs(t, err, appErrors.ErrValidation)

	sniffed := FileUpload{Filename: "notes", Size: 11, Content: strings.NewReader("plain notes")}
	material, err := env.svc.UploadMaterial(ctx, tutor, UploadMaterialInput{ProgramID: "prog-1", Type: models.MaterialTypeDocument, Title: "Sniffed", File: sniffed})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", material.Blob.MimeType)
	assert.Equal(t, int64(11), material.Blob.Size)

	empty := FileUpload{Filename: "empty.txt", MimeType: "text/plain", Content: strings.NewReader("")}
	_, err = env.svc.UploadMaterial(ctx, tutor, UploadMaterialInput{ProgramID: "prog-1", Type: models.MaterialTypeDocument, Title: "Empty", File: empty})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestMaterialServiceAdminBypassesOwnership(t *testing.T) {
	env := newServiceEnv()
	material, err := env.svc.UploadMaterial(context.Background(), admin, UploadMaterialInput{
		ProgramID: "prog-1",
		Type:      models.MaterialTypeVideo,
		Title:     "Recording",
		File:      FileUpload{Filename: "clip.mp4", Size: 4, MimeType: "video/mp4", Content: strings.NewReader("mp4!")},
	})
	require.NoError(t, err)
	assert.Equal(t, "admin-1", material.CreatedBy)
}

func TestMaterialServiceViewRules(t *testing.T) {
	env := newServiceEnv()
	material := uploadAssignment(t, env, time.Now().Add(time.Hour))
	ctx := context.Background()

	items, err := env.svc.ListMaterials(ctx, student, "prog-1", "")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = env.svc.GetMaterial(ctx, outsider, material.ID)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = env.svc.ListMaterials(ctx, otherTutor, "prog-1", "")
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = env.svc.ListMaterials(ctx, models.Principal{}, "prog-1", "")
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
	_, err = env.svc.ListMaterials(ctx, tutor, "prog-404", "")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestMaterialServiceUpdateAuditsOnlyRealChanges(t *testing.T) {
	env := newServiceEnv()
	created, err := env.svc.UploadMaterial(context.Background(), tutor, UploadMaterialInput{
		ProgramID: "prog-1", Type: models.MaterialTypeDocument, Title: "Week 1", File: textFile("w1.txt", "hello"),
	})
	require.NoError(t, err)
	env.setNow(created.CreatedAt.Add(time.Minute))

	patch := models.MaterialPatch{Title: strPtr("Week 1 (revised)")}
	_, err = env.svc.UpdateMaterial(context.Background(), tutor, created.ID, patch, nil)
	require.NoError(t, err)
	_, err = env.svc.UpdateMaterial(context.Background(), tutor, created.ID, patch, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, env.db.materialUpdates)
	assert.Equal(t, []string{models.AuditActionMaterialUpload, models.AuditActionMaterialUpdate}, env.audit.actions())

	_, err = env.svc.UpdateMaterial(context.Background(), otherTutor, created.ID, patch, nil)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestMaterialServiceUpdateReplacesFile(t *testing.T) {
	env := newServiceEnv()
	created, err := env.svc.UploadMaterial(context.Background(), tutor, UploadMaterialInput{
		ProgramID: "prog-1", Type: models.MaterialTypeDocument, Title: "Week 1", File: textFile("w1.txt", "hello"),
	})
	require.NoError(t, err)
	env.setNow(created.CreatedAt.Add(time.Minute))

	file := textFile("w1-v2.txt", "hello again")
	updated, err := env.svc.UpdateMaterial(context.Background(), tutor, created.ID, models.MaterialPatch{}, &file)
	require.NoError(t, err)
	assert.NotEqual(t, created.Blob.ID, updated.Blob.ID)
	assert.Equal(t, 1, env.blobs.released[created.Blob.ID])
	assert.Contains(t, env.blobs.stored, updated.Blob.ID)
}

func TestMaterialServiceDeleteRequiresConfirmation(t *testing.T) {
	env := newServiceEnv()
	material := uploadAssignment(t, env, time.Now().Add(time.Hour))

	_, err := env.svc.DeleteMaterial(context.Background(), tutor, material.ID, false)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Contains(t, env.db.materials, material.ID)

	_, err = env.svc.DeleteMaterial(context.Background(), otherTutor, material.ID, true)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestMaterialServiceDeleteCascades(t *testing.T) {
	env := newServiceEnv()
	due := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	env.setNow(due.Add(-3 * time.Hour))
	material := uploadAssignment(t, env, due)
	ctx := context.Background()

	var subIDs []string
	for _, s := range []models.Principal{student, {UserID: "stu-02", Role: models.RoleStudent}} {
		sub, err := env.svc.SubmitAssignment(ctx, s, material.ID, textFile("answer.txt", "answer from "+s.UserID))
		require.NoError(t, err)
		subIDs = append(subIDs, sub.ID)
	}
	_, err := env.svc.GradeSubmission(ctx, tutor, GradeInput{SubmissionID: subIDs[0], Score: 88})
	require.NoError(t, err)

	report, err := env.svc.DeleteMaterial(ctx, tutor, material.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, report.SubmissionsCount)
	assert.Equal(t, 1, report.GradesCount)
	assert.Empty(t, env.blobs.stored)
	assert.Equal(t, 3, env.blobs.totalReleases())
	assert.Contains(t, env.audit.actions(), models.AuditActionMaterialDelete)
}

func TestMaterialServiceSubmitRules(t *testing.T) {
	env := newServiceEnv()
	due := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	env.setNow(due.Add(-time.Hour))
	material := uploadAssignment(t, env, due)
	ctx := context.Background()

	_, err := env.svc.SubmitAssignment(ctx, tutor, material.ID, textFile("a.txt", "a"))
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = env.svc.SubmitAssignment(ctx, outsider, material.ID, textFile("a.txt", "a"))
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	sub, err := env.svc.SubmitAssignment(ctx, student, material.ID, textFile("a.txt", "a"))
	require.NoError(t, err)
	assert.False(t, sub.IsLate)

	env.setNow(due.Add(time.Hour))
	_, err = env.svc.SubmitAssignment(ctx, models.Principal{UserID: "stu-02", Role: models.RoleStudent}, material.ID, textFile("b.txt", "b"))
	require.ErrorIs(t, err, appErrors.ErrAssignmentClosed)
	assert.Equal(t, 1, env.blobs.totalReleases(), "rejected submission file is released")

	mine, err := env.svc.MySubmission(ctx, student, material.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, mine.ID)
}

func TestMaterialServiceSubmitToDocumentFails(t *testing.T) {
	env := newServiceEnv()
	doc, err := env.svc.UploadMaterial(context.Background(), tutor, UploadMaterialInput{
		ProgramID: "prog-1", Type: models.MaterialTypeDocument, Title: "Notes", File: textFile("n.txt", "n"),
	})
	require.NoError(t, err)

	_, err = env.svc.SubmitAssignment(context.Background(), student, doc.ID, textFile("a.txt", "a"))
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Len(t, env.blobs.stored, 1)
}

func TestMaterialServiceGradingFlow(t *testing.T) {
	env := newServiceEnv()
	due := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	env.setNow(due.Add(-time.Hour))
	material := uploadAssignment(t, env, due)
	ctx := context.Background()

	sub, err := env.svc.SubmitAssignment(ctx, student, material.ID, textFile("a.txt", "answer"))
	require.NoError(t, err)

	_, err = env.svc.GradeSubmission(ctx, otherTutor, GradeInput{SubmissionID: sub.ID, Score: 90})
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = env.svc.GradeSubmission(ctx, tutor, GradeInput{SubmissionID: sub.ID, Score: 101})
	require.ErrorIs(t, err, appErrors.ErrValidation)

	draft, err := env.svc.GradeSubmission(ctx, tutor, GradeInput{SubmissionID: sub.ID, Score: 72, IsDraft: true})
	require.NoError(t, err)
	assert.True(t, draft.IsDraft)
	_, err = env.svc.GetGrade(ctx, student, sub.ID)
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	grade, err := env.svc.QuickGrade(ctx, tutor, sub.ID, 95)
	require.NoError(t, err)
	assert.Equal(t, 95, grade.Score)
	assert.Equal(t, models.LetterA, grade.Letter)

	seen, err := env.svc.GetGrade(ctx, student, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 95, seen.Score)
	_, err = env.svc.GetGrade(ctx, models.Principal{UserID: "stu-02", Role: models.RoleStudent}, sub.ID)
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	summary, err := env.svc.SubmissionSummary(ctx, tutor, material.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SubmittedCount)
	assert.Equal(t, 3, summary.EnrolledCount)
	assert.Equal(t, 95.0, summary.AverageScore)

	subs, err := env.svc.ListSubmissions(ctx, tutor, material.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, models.SubmissionStatusGraded, subs[0].Status)

	actions := env.audit.actions()
	assert.Equal(t, 2, countOf(actions, models.AuditActionGradeRecord))
}

func TestMaterialServiceAttendanceFlow(t *testing.T) {
	env := newTestEnv()
	env.db.addProgram("prog-1", "tutor-1", roster(15)...)
	ctx := context.Background()

	session, err := env.svc.CreateSession(ctx, tutor, CreateSessionRequest{
		ProgramID:     "prog-1",
		ScheduledDate: time.Date(2026, 4, 7, 0, 0, 0, 0, time.UTC),
		StartTime:     "09:00",
		EndTime:       "10:00",
	})
	require.NoError(t, err)
	assert.Contains(t, env.audit.actions(), models.AuditActionSessionCreate)

	_, err = env.svc.MarkAllPresent(ctx, otherTutor, session.ID)
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	summary, err := env.svc.MarkAllPresent(ctx, tutor, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, summary.Present)
	assert.Equal(t, 100.0, summary.Rate)

	require.NoError(t, env.svc.RecordAttendance(ctx, tutor, session.ID, "stu-01", models.AttendanceStatusAbsent, nil))
	summary, err = env.svc.AttendanceSummary(ctx, tutor, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 14, summary.Present)
	assert.Equal(t, 93.3, summary.Rate)

	entries, err := env.svc.ListAttendance(ctx, tutor, session.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 15)

	doc, err := env.svc.AttendanceReport(ctx, tutor, session.ID, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", doc.ContentType)
}

func TestMaterialServiceDownloadLinks(t *testing.T) {
	env := newServiceEnv()
	due := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	env.setNow(due.Add(-time.Hour))
	material := uploadAssignment(t, env, due)
	ctx := context.Background()

	link, err := env.svc.MaterialDownload(ctx, student, material.ID)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/files/"+material.Blob.ID+"?token=tok-"+material.Blob.ID, link.URL)
	assert.Equal(t, "essay.txt", link.Filename)

	sub, err := env.svc.SubmitAssignment(ctx, student, material.ID, textFile("mine.txt", "mine"))
	require.NoError(t, err)
	_, err = env.svc.SubmissionDownload(ctx, tutor, sub.ID)
	require.NoError(t, err)
	_, err = env.svc.SubmissionDownload(ctx, models.Principal{UserID: "stu-02", Role: models.RoleStudent}, sub.ID)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

type failingAudit struct{}

func (failingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return errors.New("audit table locked")
}

func TestMaterialServiceAuditFailureDoesNotFailUpload(t *testing.T) {
	env := newServiceEnv()
	env.svc.audit = failingAudit{}

	_, err := env.svc.UploadMaterial(context.Background(), tutor, UploadMaterialInput{
		ProgramID: "prog-1", Type: models.MaterialTypeDocument, Title: "Notes", File: textFile("n.txt", "n"),
	})
	require.NoError(t, err)
}

func countOf(values []string, want string) int {
	n := 0
	for _, v := range values {
		if v == want {
			n++
		}
	}
	return n
}
