package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Dilip0552/PresenSync/internal/admission"
	"github.com/Dilip0552/PresenSync/internal/auth"
	"github.com/Dilip0552/PresenSync/internal/docstore"
	"github.com/Dilip0552/PresenSync/internal/notify"
	"github.com/Dilip0552/PresenSync/internal/queue"
	"github.com/Dilip0552/PresenSync/internal/report"
	"github.com/Dilip0552/PresenSync/internal/session"
	"github.com/Dilip0552/PresenSync/internal/users"
)

const (
	testAppID  = "test-app"
	signingKey = "test-signing-key"
	jwtIssuer  = "presensync"

	studentUID = "stu-1"
	teacherUID = "tea-1"
	adminUID   = "adm-1"
)

type testServer struct {
	router *gin.Engine
	store  *docstore.Memory
	queue  *queue.InMemory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	RegisterValidators()

	store := docstore.NewMemory()
	q := queue.NewInMemory(8)

	userRepo := users.NewRepository(store, testAppID)
	sessionRepo := session.NewRepository(store, testAppID)
	notifier := notify.NewService(store, userRepo, q, testAppID)
	exporter := report.NewExporter(store, testAppID)
	admissions := admission.NewService(store, admission.Config{AppID: testAppID})

	h := New(admissions, sessionRepo, userRepo, notifier, exporter, store, testAppID)

	r := gin.New()
	r.GET("/", h.Root)
	authed := r.Group("/", auth.Middleware(signingKey, jwtIssuer, userRepo))
	authed.POST("/attendance/mark", h.MarkAttendance)
	authed.GET("/attendance/records", h.ListRecords)
	teachers := authed.Group("/", auth.RequireRole("teacher"))
	teachers.POST("/sessions", h.CreateSession)
	teachers.GET("/sessions", h.ListSessions)
	teachers.PUT("/sessions/:id/status", h.SetSessionStatus)
	teachers.GET("/sessions/:id/qr", h.SessionQR)
	teachers.GET("/reports/sessions/:id/xlsx", h.ExportSessionReport)
	admins := authed.Group("/admin", auth.RequireRole("admin"))
	admins.GET("/users", h.ListUsers)
	admins.PUT("/users/:uid/role", h.UpdateUserRole)
	admins.DELETE("/users/:uid", h.DeleteUser)
	admins.POST("/notifications/send_global", h.SendGlobalNotification)

	ts := &testServer{router: r, store: store, queue: q}
	ts.seedProfile(t, studentUID, "Asha Rao", "CS21B042", "student")
	ts.seedProfile(t, teacherUID, "Prof. Iyer", "", "teacher")
	ts.seedProfile(t, adminUID, "Admin", "", "admin")
	return ts
}

func (ts *testServer) seedProfile(t *testing.T, uid, name, rollNo, role string) {
	t.Helper()
	err := ts.store.Put(context.Background(), docstore.ProfilesCollection(testAppID), uid, map[string]any{
		"fullName": name,
		"rollNo":   rollNo,
		"role":     role,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (ts *testServer) seedActiveSession(t *testing.T, sessionID string) {
	t.Helper()
	err := ts.store.Put(context.Background(), docstore.SessionsCollection(testAppID, teacherUID), sessionID, map[string]any{
		"status":       "active",
		"startTime":    time.Now().UTC().Add(-10 * time.Minute).Format(time.RFC3339),
		"duration":     float64(60),
		"durationUnit": "min",
		"classId":      "class-1",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func token(t *testing.T, uid, role string) string {
	t.Helper()
	pair, err := auth.Issue(uid, role, jwtIssuer, signingKey, 15*time.Minute, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return pair.AccessToken
}

func (ts *testServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func claimBody(sessionID string) map[string]any {
	return map[string]any{
		"sessionId":           sessionID,
		"studentId":           studentUID,
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
		"latitude":            12.9716,
		"longitude":           77.5946,
		"faceMatchConfidence": 0.9,
		"ipAddress":           "203.0.113.7",
		"classId":             "class-1",
		"className":           "Algorithms",
		"teacherId":           teacherUID,
	}
}

func TestMarkAttendanceStatuses(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(ts *testServer)
		body       func() map[string]any
		bearer     func(t *testing.T) string
		wantStatus int
		wantError  string
	}{
		{
			name:       "accepted",
			setup:      func(ts *testServer) { ts.seedActiveSession(t, "s1") },
			body:       func() map[string]any { return claimBody("s1") },
			wantStatus: http.StatusOK,
		},
		{
			name:  "expired qr",
			setup: func(ts *testServer) { ts.seedActiveSession(t, "s1") },
			body: func() map[string]any {
				b := claimBody("s1")
				b["timestamp"] = time.Now().UTC().Add(-10 * time.Minute).Format(time.RFC3339)
				return b
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "qr_expired",
		},
		{
			name:       "unknown session",
			body:       func() map[string]any { return claimBody("nope") },
			wantStatus: http.StatusNotFound,
			wantError:  "session_not_found",
		},
		{
			name:       "missing claim fields",
			body:       func() map[string]any { return map[string]any{"sessionId": "s1"} },
			wantStatus: http.StatusBadRequest,
			wantError:  "bad_request",
		},
		{
			name:       "no bearer token",
			body:       func() map[string]any { return claimBody("s1") },
			bearer:     func(*testing.T) string { return "" },
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_credential",
		},
		{
			name:       "token without profile",
			body:       func() map[string]any { return claimBody("s1") },
			bearer:     func(t *testing.T) string { return token(t, "ghost-uid", "student") },
			wantStatus: http.StatusUnauthorized,
			wantError:  "profile_not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			if tt.setup != nil {
				tt.setup(ts)
			}
			bearer := token(t, studentUID, "student")
			if tt.bearer != nil {
				bearer = tt.bearer(t)
			}

			w := ts.do(t, http.MethodPost, "/attendance/mark", bearer, tt.body())
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body: %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantError != "" && !strings.Contains(w.Body.String(), tt.wantError) {
				t.Errorf("body %s does not carry error %q", w.Body.String(), tt.wantError)
			}
		})
	}
}

func TestMarkAttendanceDuplicateConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.seedActiveSession(t, "s1")
	bearer := token(t, studentUID, "student")

	if w := ts.do(t, http.MethodPost, "/attendance/mark", bearer, claimBody("s1")); w.Code != http.StatusOK {
		t.Fatalf("first mark status = %d (body: %s)", w.Code, w.Body.String())
	}
	w := ts.do(t, http.MethodPost, "/attendance/mark", bearer, claimBody("s1"))
	if w.Code != http.StatusConflict {
		t.Fatalf("second mark status = %d, want 409", w.Code)
	}
	if !strings.Contains(w.Body.String(), "already_marked") {
		t.Errorf("body %s does not carry already_marked", w.Body.String())
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	bearer := token(t, teacherUID, "teacher")

	create := map[string]any{
		"classId":      "class-1",
		"className":    "Algorithms",
		"startTime":    time.Now().UTC().Format(time.RFC3339),
		"duration":     60,
		"durationUnit": "min",
	}
	w := ts.do(t, http.MethodPost, "/sessions", bearer, create)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (body: %s)", w.Code, w.Body.String())
	}
	var created session.Record
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Status != "scheduled" {
		t.Errorf("new session status = %q, want scheduled", created.Status)
	}

	w = ts.do(t, http.MethodPut, "/sessions/"+created.ID+"/status", bearer, map[string]any{"status": "active"})
	if w.Code != http.StatusOK {
		t.Fatalf("activate status = %d (body: %s)", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodGet, "/sessions/"+created.ID+"/qr", bearer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("qr status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("qr content type = %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("qr body is not a PNG")
	}
}

func TestSessionCreateRejectsBadStartTime(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/sessions", token(t, teacherUID, "teacher"), map[string]any{
		"classId":      "class-1",
		"startTime":    "next tuesday",
		"duration":     60,
		"durationUnit": "min",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestRoleGates(t *testing.T) {
	ts := newTestServer(t)
	studentToken := token(t, studentUID, "student")

	tests := []struct {
		method, path string
	}{
		{http.MethodGet, "/sessions"},
		{http.MethodGet, "/admin/users"},
		{http.MethodPost, "/admin/notifications/send_global"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, studentToken, nil)
			if w.Code != http.StatusForbidden {
				t.Errorf("status = %d, want 403", w.Code)
			}
		})
	}
}

func TestAdminUserManagement(t *testing.T) {
	ts := newTestServer(t)
	bearer := token(t, adminUID, "admin")

	w := ts.do(t, http.MethodGet, "/admin/users", bearer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var listed struct {
		Users []users.Profile `json:"users"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Users) != 3 {
		t.Errorf("listed %d users, want 3", len(listed.Users))
	}

	w = ts.do(t, http.MethodPut, "/admin/users/"+studentUID+"/role", bearer, map[string]any{"new_role": "teacher"})
	if w.Code != http.StatusOK {
		t.Fatalf("role update status = %d (body: %s)", w.Code, w.Body.String())
	}
	repo := users.NewRepository(ts.store, testAppID)
	p, err := repo.Get(context.Background(), studentUID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Role != "teacher" {
		t.Errorf("role after update = %q, want teacher", p.Role)
	}

	// Self-deletion is blocked.
	w = ts.do(t, http.MethodDelete, "/admin/users/"+adminUID, bearer, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("self delete status = %d, want 400", w.Code)
	}

	w = ts.do(t, http.MethodDelete, "/admin/users/"+studentUID, bearer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if _, err := repo.Get(context.Background(), studentUID); err != users.ErrProfileNotFound {
		t.Errorf("Get(deleted) error = %v, want ErrProfileNotFound", err)
	}
}

func TestGlobalNotificationQueued(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/admin/notifications/send_global", token(t, adminUID, "admin"), map[string]any{
		"message": "Exam tomorrow",
		"type":    "warning",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "3 users") {
		t.Errorf("body %s does not report 3 targets", w.Body.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	messages, err := ts.queue.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-messages:
		if msg.Type != notify.MessageType {
			t.Errorf("queued message type = %q", msg.Type)
		}
		job, err := notify.DecodeJob(msg.Body)
		if err != nil {
			t.Fatal(err)
		}
		if len(job.UIDs) != 3 || job.Message != "Exam tomorrow" {
			t.Errorf("job = %+v, want 3 uids and the broadcast message", job)
		}
	case <-ctx.Done():
		t.Fatal("no message queued")
	}
}

func TestExportSessionReport(t *testing.T) {
	ts := newTestServer(t)
	ts.seedActiveSession(t, "s1")
	if w := ts.do(t, http.MethodPost, "/attendance/mark", token(t, studentUID, "student"), claimBody("s1")); w.Code != http.StatusOK {
		t.Fatalf("mark status = %d (body: %s)", w.Code, w.Body.String())
	}

	w := ts.do(t, http.MethodGet, "/reports/sessions/s1/xlsx", token(t, teacherUID, "teacher"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d (body: %s)", w.Code, w.Body.String())
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Error("export body is not a zip-based workbook")
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "attendance-s1.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestRootStatus(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %v", body["status"])
	}
}
