package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/tutor-materials-api/internal/models"
)

// memDB is an in-memory stand-in for the Postgres tables used by the service tests.
type memDB struct {
	mu              sync.Mutex
	seq             int
	programs        map[string]models.Program
	roster          map[string][]models.RosterStudent
	materials       map[string]models.Material
	submissions     map[string]models.Submission
	grades          map[string]models.Grade
	sessions        map[string]models.AttendanceSession
	entries         map[string]map[string]models.AttendanceEntry
	materialUpdates int
	updateErr       error
	createErr       error
}

func newMemDB() *memDB {
	return &memDB{
		programs:    map[string]models.Program{},
		roster:      map[string][]models.RosterStudent{},
		materials:   map[string]models.Material{},
		submissions: map[string]models.Submission{},
		grades:      map[string]models.Grade{},
		sessions:    map[string]models.AttendanceSession{},
		entries:     map[string]map[string]models.AttendanceEntry{},
	}
}

func (db *memDB) nextID(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%d", prefix, db.seq)
}

func (db *memDB) addProgram(id, tutorID string, students ...models.RosterStudent) {
	db.programs[id] = models.Program{ID: id, Name: id, TutorID: tutorID}
	db.roster[id] = append(db.roster[id], students...)
}

type memMaterials struct{ db *memDB }

func (m memMaterials) Create(ctx context.Context, material *models.Material) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.createErr != nil {
		return m.db.createErr
	}
	if material.ID == "" {
		material.ID = m.db.nextID("mat")
	}
	m.db.materials[material.ID] = *material
	return nil
}

func (m memMaterials) GetByID(ctx context.Context, id string) (*models.Material, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	material, ok := m.db.materials[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &material, nil
}

func (m memMaterials) List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	allowed := map[models.MaterialType]bool{}
	for _, t := range filter.Category.Types() {
		allowed[t] = true
	}
	var items []models.Material
	for _, material := range m.db.materials {
		if material.ProgramID != filter.ProgramID {
			continue
		}
		if len(allowed) > 0 && !allowed[material.Type] {
			continue
		}
		items = append(items, material)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].SortOrder < items[j].SortOrder
	})
	return items, nil
}

func (m memMaterials) Update(ctx context.Context, material *models.Material, newBlob *models.BlobRef) (*models.BlobRef, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.updateErr != nil {
		return nil, m.db.updateErr
	}
	current, ok := m.db.materials[material.ID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	old := current.Blob
	material.Blob = old
	if newBlob != nil {
		material.Blob = *newBlob
	}
	m.db.materials[material.ID] = *material
	m.db.materialUpdates++
	if newBlob != nil && old.ID != newBlob.ID {
		return &old, nil
	}
	return nil, nil
}

func (m memMaterials) Delete(ctx context.Context, id string) (*models.DeletedMaterial, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	material, ok := m.db.materials[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	report := &models.DeletedMaterial{MaterialID: id, Blobs: []models.BlobRef{material.Blob}}
	for subID, sub := range m.db.submissions {
		if sub.MaterialID != id {
			continue
		}
		report.Blobs = append(report.Blobs, sub.File)
		if _, graded := m.db.grades[subID]; graded {
			delete(m.db.grades, subID)
			report.GradesCount++
		}
		delete(m.db.submissions, subID)
		report.SubmissionsCount++
	}
	delete(m.db.materials, id)
	return report, nil
}

type memSubmissions struct{ db *memDB }

func (m memSubmissions) Upsert(ctx context.Context, sub *models.Submission) (*models.BlobRef, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for id, existing := range m.db.submissions {
		if existing.MaterialID == sub.MaterialID && existing.StudentID == sub.StudentID {
			if grade, ok := m.db.grades[id]; ok && !grade.IsDraft {
				return nil, models.ErrSubmissionGraded
			}
			sub.ID = id
			m.db.submissions[id] = *sub
			if existing.File.ID != sub.File.ID {
				old := existing.File
				return &old, nil
			}
			return nil, nil
		}
	}
	sub.ID = m.db.nextID("sub")
	m.db.submissions[sub.ID] = *sub
	return nil, nil
}

func (m memSubmissions) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	sub, ok := m.db.submissions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	sub.Grade = nil
	return &sub, nil
}

func (m memSubmissions) GetByMaterialAndStudent(ctx context.Context, materialID, studentID string) (*models.Submission, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, sub := range m.db.submissions {
		if sub.MaterialID == materialID && sub.StudentID == studentID {
			sub.Grade = nil
			return &sub, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memSubmissions) ListByMaterial(ctx context.Context, materialID string) ([]models.Submission, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var subs []models.Submission
	for _, sub := range m.db.submissions {
		if sub.MaterialID == materialID {
			sub.Grade = nil
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubmittedAt.Before(subs[j].SubmittedAt) })
	return subs, nil
}

func (m memSubmissions) CountByMaterial(ctx context.Context, materialID string) (int, error) {
	subs, _ := m.ListByMaterial(ctx, materialID)
	return len(subs), nil
}

type memGrades struct{ db *memDB }

func (m memGrades) Upsert(ctx context.Context, grade *models.Grade) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.grades[grade.SubmissionID] = *grade
	return nil
}

func (m memGrades) GetBySubmission(ctx context.Context, submissionID string) (*models.Grade, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	grade, ok := m.db.grades[submissionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &grade, nil
}

func (m memGrades) ListByMaterial(ctx context.Context, materialID string) (map[string]models.Grade, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	result := map[string]models.Grade{}
	for subID, grade := range m.db.grades {
		if sub, ok := m.db.submissions[subID]; ok && sub.MaterialID == materialID {
			result[subID] = grade
		}
	}
	return result, nil
}

func (m memGrades) StatsByMaterial(ctx context.Context, materialID string) (*models.GradeStats, error) {
	grades, _ := m.ListByMaterial(ctx, materialID)
	stats := &models.GradeStats{}
	for _, g := range grades {
		if g.IsDraft {
			continue
		}
		stats.Count++
		stats.ScoreSum += int64(g.Score)
	}
	return stats, nil
}

type memPrograms struct{ db *memDB }

func (m memPrograms) FindByID(ctx context.Context, id string) (*models.Program, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	program, ok := m.db.programs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &program, nil
}

func (m memPrograms) EnrolledStudents(ctx context.Context, programID string) ([]models.RosterStudent, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return append([]models.RosterStudent(nil), m.db.roster[programID]...), nil
}

func (m memPrograms) IsEnrolled(ctx context.Context, programID, studentID string) (bool, error) {
	students, _ := m.EnrolledStudents(ctx, programID)
	for _, s := range students {
		if s.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

type memAttendance struct{ db *memDB }

func (m memAttendance) CreateSession(ctx context.Context, session *models.AttendanceSession, studentIDs []string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if session.ID == "" {
		session.ID = m.db.nextID("sess")
	}
	names := map[string]string{}
	for _, s := range m.db.roster[session.ProgramID] {
		names[s.StudentID] = s.FullName
	}
	entries := map[string]models.AttendanceEntry{}
	for _, id := range studentIDs {
		entries[id] = models.AttendanceEntry{SessionID: session.ID, StudentID: id, StudentName: names[id], Status: models.AttendanceStatusAbsent}
	}
	m.db.sessions[session.ID] = *session
	m.db.entries[session.ID] = entries
	return nil
}

func (m memAttendance) GetSession(ctx context.Context, id string) (*models.AttendanceSession, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	session, ok := m.db.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &session, nil
}

func (m memAttendance) SetStatus(ctx context.Context, sessionID, studentID string, status models.AttendanceStatus, joinedAt *time.Time) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	entry, ok := m.db.entries[sessionID][studentID]
	if !ok {
		return false, nil
	}
	entry.Status = status
	entry.JoinedAt = joinedAt
	m.db.entries[sessionID][studentID] = entry
	return true, nil
}

func (m memAttendance) MarkAllPresent(ctx context.Context, sessionID string, at time.Time) (int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	n := 0
	for id, entry := range m.db.entries[sessionID] {
		entry.Status = models.AttendanceStatusPresent
		if entry.JoinedAt == nil {
			stamp := at
			entry.JoinedAt = &stamp
		}
		m.db.entries[sessionID][id] = entry
		n++
	}
	return n, nil
}

func (m memAttendance) Counts(ctx context.Context, sessionID string) (*models.AttendanceCounts, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	counts := &models.AttendanceCounts{}
	for _, entry := range m.db.entries[sessionID] {
		switch entry.Status {
		case models.AttendanceStatusPresent:
			counts.Present++
		case models.AttendanceStatusAbsent:
			counts.Absent++
		case models.AttendanceStatusLate:
			counts.Late++
		}
		counts.Total++
	}
	return counts, nil
}

func (m memAttendance) ListEntries(ctx context.Context, sessionID string) ([]models.AttendanceEntry, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var entries []models.AttendanceEntry
	for _, entry := range m.db.entries[sessionID] {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StudentID < entries[j].StudentID })
	return entries, nil
}

func (m memAttendance) ReportRows(ctx context.Context, sessionID string) ([]models.AttendanceReportRow, error) {
	entries, _ := m.ListEntries(ctx, sessionID)
	rows := make([]models.AttendanceReportRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, models.AttendanceReportRow{StudentID: e.StudentID, StudentName: e.StudentName, Status: e.Status, JoinedAt: e.JoinedAt})
	}
	return rows, nil
}

// memBlobs records puts and releases.
type memBlobs struct {
	mu         sync.Mutex
	seq        int
	stored     map[string]models.BlobRef
	released   map[string]int
	releaseErr error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{stored: map[string]models.BlobRef{}, released: map[string]int{}}
}

func (b *memBlobs) Put(ctx context.Context, r io.Reader, mimeType, name string) (models.BlobRef, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.BlobRef{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	ref := models.BlobRef{ID: fmt.Sprintf("blob-%d", b.seq), Size: int64(len(data)), MimeType: mimeType, OriginalName: name}
	b.stored[ref.ID] = ref
	return ref, nil
}

func (b *memBlobs) Release(ctx context.Context, ref models.BlobRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released[ref.ID]++
	if b.releaseErr != nil {
		return b.releaseErr
	}
	delete(b.stored, ref.ID)
	return nil
}

func (b *memBlobs) totalReleases() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, n := range b.released {
		total += n
	}
	return total
}

type auditRecorder struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, *log)
	return nil
}

func (a *auditRecorder) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type stubSigner struct{}

func (stubSigner) Sign(blobID string) (string, time.Time, error) {
	return "tok-" + blobID, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), nil
}

// testEnv wires every component over the in-memory stores.
type testEnv struct {
	db         *memDB
	blobs      *memBlobs
	audit      *auditRecorder
	catalog    *MaterialCatalog
	tracker    *SubmissionTracker
	grading    *GradingEngine
	attendance *AttendanceRegister
	svc        *MaterialService
}

func newTestEnv() *testEnv {
	db := newMemDB()
	blobs := newMemBlobs()
	audit := &auditRecorder{}
	catalog := NewMaterialCatalog(memMaterials{db}, blobs, nil)
	tracker := NewSubmissionTracker(memSubmissions{db}, memGrades{db}, memMaterials{db}, memPrograms{db}, blobs, nil, nil)
	grading := NewGradingEngine(memGrades{db}, memSubmissions{db}, memMaterials{db}, DefaultGradeScale, nil, nil)
	attendance := NewAttendanceRegister(memAttendance{db}, memPrograms{db}, nil)
	svc := NewMaterialService(memPrograms{db}, catalog, tracker, grading, attendance, blobs, stubSigner{}, audit, nil, nil, nil, MaterialServiceConfig{
		MaxFileSize:  1024,
		AllowedMIMEs: []string{"application/pdf", "text/plain", "video/mp4"},
	})
	return &testEnv{db: db, blobs: blobs, audit: audit, catalog: catalog, tracker: tracker, grading: grading, attendance: attendance, svc: svc}
}

func (e *testEnv) setNow(at time.Time) {
	clock := func() time.Time { return at }
	e.catalog.now = clock
	e.tracker.now = clock
	e.grading.now = clock
	e.attendance.now = clock
	e.svc.now = clock
}

func textFile(name, body string) FileUpload {
	return FileUpload{Filename: name, Size: int64(len(body)), MimeType: "text/plain", Content: strings.NewReader(body)}
}

func roster(n int) []models.RosterStudent {
	students := make([]models.RosterStudent, 0, n)
	for i := 1; i <= n; i++ {
		students = append(students, models.RosterStudent{StudentID: fmt.Sprintf("stu-%02d", i), FullName: fmt.Sprintf("Student %02d", i)})
	}
	return students
}
