package httpapi

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Dilip0552/PresenSync/internal/admission"
	"github.com/Dilip0552/PresenSync/internal/auth"
	"github.com/Dilip0552/PresenSync/internal/docstore"
	"github.com/Dilip0552/PresenSync/internal/notify"
	"github.com/Dilip0552/PresenSync/internal/report"
	"github.com/Dilip0552/PresenSync/internal/session"
	"github.com/Dilip0552/PresenSync/internal/users"
)

// Handler wires the HTTP routes to the domain services.
type Handler struct {
	admissions *admission.Service
	sessions   *session.Repository
	users      *users.Repository
	notify     *notify.Service
	reports    *report.Exporter
	store      docstore.Store
	appID      string
}

// New creates the API handler.
func New(admissions *admission.Service, sessions *session.Repository, userRepo *users.Repository, notifier *notify.Service, reports *report.Exporter, store docstore.Store, appID string) *Handler {
	return &Handler{
		admissions: admissions,
		sessions:   sessions,
		users:      userRepo,
		notify:     notifier,
		reports:    reports,
		store:      store,
		appID:      appID,
	}
}

// Root reports API status.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "PresenSync Backend API is running!",
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   "1.0.0",
	})
}

// ---------- Attendance ----------

// MarkAttendance validates a claim through the admission pipeline.
func (h *Handler) MarkAttendance(c *gin.Context) {
	var claim admission.Claim
	if err := c.ShouldBindJSON(&claim); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": err.Error()})
		return
	}

	profile, ok := auth.CallerProfile(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credential", "detail": "no authenticated caller"})
		return
	}
	caller := admission.Caller{
		UID:      profile.UID,
		FullName: profile.FullName,
		RollNo:   profile.RollNo,
		Role:     profile.Role,
	}

	conf, err := h.admissions.Submit(c.Request.Context(), claim, caller)
	if err != nil {
		reason := admission.ReasonOf(err)
		c.JSON(statusForReason(reason), gin.H{"error": string(reason), "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conf)
}

// ListRecords returns attendance records, optionally filtered by session and
// student.
func (h *Handler) ListRecords(c *gin.Context) {
	filters := map[string]any{}
	if v := c.Query("sessionId"); v != "" {
		filters["sessionId"] = v
	}
	if v := c.Query("studentId"); v != "" {
		filters["studentId"] = v
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	docs, err := h.store.Query(c.Request.Context(), docstore.AttendanceCollection(h.appID), filters, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "detail": err.Error()})
		return
	}
	records := make([]gin.H, 0, len(docs))
	for _, doc := range docs {
		rec := gin.H{"id": doc.ID}
		for k, v := range doc.Data {
			rec[k] = v
		}
		records = append(records, rec)
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// ---------- Sessions ----------

// CreateSession stores a new session owned by the calling teacher.
func (h *Handler) CreateSession(c *gin.Context) {
	var rec session.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": err.Error()})
		return
	}
	profile, _ := auth.CallerProfile(c)
	id, err := h.sessions.Create(c.Request.Context(), profile.UID, rec)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "detail": err.Error()})
		return
	}
	rec.ID = id
	c.JSON(http.StatusCreated, rec)
}

// ListSessions returns the calling teacher's sessions.
func (h *Handler) ListSessions(c *gin.Context) {
	profile, _ := auth.CallerProfile(c)
	recs, err := h.sessions.List(c.Request.Context(), profile.UID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": recs})
}

// SetSessionStatus transitions a session's lifecycle status.
func (h *Handler) SetSessionStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required,oneof=scheduled active ended cancelled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": err.Error()})
		return
	}
	profile, _ := auth.CallerProfile(c)
	err := h.sessions.SetStatus(c.Request.Context(), profile.UID, c.Param("id"), req.Status)
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found", "detail": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session status updated", "status": req.Status})
}

// SessionQR renders the admission QR code for a session as PNG.
func (h *Handler) SessionQR(c *gin.Context) {
	profile, _ := auth.CallerProfile(c)
	rec, err := h.sessions.Get(c.Request.Context(), profile.UID, c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found", "detail": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "detail": err.Error()})
		return
	}

	size := 256
	if v := c.Query("size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			size = parsed
		}
	}
	png, err := session.MintQR(session.NewQRPayload(rec, profile.UID), size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr_error", "detail": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// ---------- Admin ----------

// ListUsers returns every user profile.
func (h *Handler) ListUsers(c *gin.Context) {
	profiles, err := h.users.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "detail": "error fetching user data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": profiles})
}

// UpdateUserRole changes a user's role.
func (h *Handler) UpdateUserRole(c *gin.Context) {
	var req struct {
		NewRole string `json:"new_role" binding:"required,oneof=student teacher admin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": err.Error()})
		return
	}
	uid := c.Param("uid")
	err := h.users.UpdateRole(c.Request.Context(), uid, req.NewRole)
	if errors.Is(err, users.ErrProfileNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile_not_found", "detail": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "detail": "error updating user role"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("User %s role updated to %s", uid, req.NewRole)})
}

// DeleteUser removes a user's profile documents. Admins cannot delete their
// own account through the API.
func (h *Handler) DeleteUser(c *gin.Context) {
	uid := c.Param("uid")
	profile, _ := auth.CallerProfile(c)
	if uid == profile.UID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": "cannot delete your own admin account via API"})
		return
	}
	if _, err := h.users.Get(c.Request.Context(), uid); errors.Is(err, users.ErrProfileNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile_not_found", "detail": "user not found"})
		return
	}
	if err := h.users.Delete(c.Request.Context(), uid); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "detail": err.Error()})
		return
	}
	log.Printf("user %s and their profile data deleted", uid)
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("User %s and their profile data successfully deleted.", uid)})
}

// SendGlobalNotification fans a notification out to every user.
func (h *Handler) SendGlobalNotification(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
		Type    string `json:"type" binding:"omitempty,oneof=info success warning error"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "detail": err.Error()})
		return
	}
	count, err := h.notify.Broadcast(c.Request.Context(), req.Message, req.Type, "admin")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "detail": "error sending notification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Global notification queued for %d users.", count)})
}

// ---------- Reports ----------

// ExportSessionReport streams the session's attendance as an xlsx workbook.
func (h *Handler) ExportSessionReport(c *gin.Context) {
	sessionID := c.Param("id")
	data, err := h.reports.SessionXLSX(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "detail": err.Error()})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=attendance-%s.xlsx", sessionID))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func statusForReason(reason admission.Reason) int {
	switch reason {
	case admission.ReasonSessionNotFound:
		return http.StatusNotFound
	case admission.ReasonAlreadyMarked:
		return http.StatusConflict
	case admission.ReasonStorageError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
