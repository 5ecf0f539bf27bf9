package admission

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Dilip0552/PresenSync/internal/docstore"
)

// Config tunes the validation pipeline.
type Config struct {
	AppID string

	// LivenessWindow bounds the age of a scanned QR timestamp.
	LivenessWindow time.Duration
	// FutureSkew bounds how far ahead of server time a QR timestamp may be.
	// Zero disables the check.
	FutureSkew time.Duration
	// Grace is added on both edges of the session window.
	Grace time.Duration
	// RadiusMeters is the allowed distance from the classroom point.
	RadiusMeters float64
	// GeoEnforce turns the distance signal into a hard rejection. Off by
	// default: out-of-range claims are flagged on the record and counted, but
	// still admitted.
	GeoEnforce bool
	// StrictDuplicateCheck makes a failed duplicate lookup fatal instead of
	// logged-and-skipped. The atomic insert still guards uniqueness either way.
	StrictDuplicateCheck bool
}

// Service decides whether an attendance claim becomes a persisted record.
type Service struct {
	store docstore.Store
	cfg   Config
	locks *lockMap

	// swapped out by tests
	now func() time.Time
}

// NewService creates the admission service. Zero-valued knobs get the
// production defaults.
func NewService(store docstore.Store, cfg Config) *Service {
	if cfg.LivenessWindow <= 0 {
		cfg.LivenessWindow = 300 * time.Second
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 5 * time.Minute
	}
	if cfg.RadiusMeters <= 0 {
		cfg.RadiusMeters = 200
	}
	return &Service{store: store, cfg: cfg, locks: newLockMap(), now: time.Now}
}

// Submit runs the ordered validation pipeline over one claim and, when every
// check passes, persists exactly one attendance record. Rejections are
// *Error values carrying the reason and the computed diagnostics; no write
// happens on any rejection path.
func (s *Service) Submit(ctx context.Context, claim Claim, caller Caller) (Confirmation, error) {
	conf, err := s.submit(ctx, claim, caller)
	countOutcome(err)
	return conf, err
}

func (s *Service) submit(ctx context.Context, claim Claim, caller Caller) (Confirmation, error) {
	studentID := caller.UID
	if claim.StudentID != "" && claim.StudentID != studentID {
		log.Printf("claim student %s does not match caller %s, using caller identity", claim.StudentID, studentID)
	}

	// 1. Timestamp parsing.
	qrTime, err := ParseTimestamp(claim.QRTimestamp)
	if err != nil {
		return Confirmation{}, reject(ReasonInvalidTimestamp, "invalid QR timestamp: %v", err)
	}

	// 2. Liveness window.
	now := s.now().UTC()
	age := now.Sub(qrTime)
	if age > s.cfg.LivenessWindow {
		return Confirmation{}, reject(ReasonQrExpired, "QR code expired: generated %.1fs ago, window is %.0fs",
			age.Seconds(), s.cfg.LivenessWindow.Seconds())
	}
	if s.cfg.FutureSkew > 0 && age < -s.cfg.FutureSkew {
		return Confirmation{}, reject(ReasonQrExpired, "QR timestamp is %.1fs ahead of server time", (-age).Seconds())
	}

	// 3. Session existence and state.
	sessionCol := docstore.SessionsCollection(s.cfg.AppID, claim.TeacherID)
	doc, err := s.store.Get(ctx, sessionCol, claim.SessionID)
	if errors.Is(err, docstore.ErrNotFound) {
		return Confirmation{}, reject(ReasonSessionNotFound, "session %s not found", claim.SessionID)
	}
	if err != nil {
		return Confirmation{}, reject(ReasonStorageError, "fetching session: %v", err)
	}
	session, err := parseSession(doc.Data)
	if err != nil {
		return Confirmation{}, reject(ReasonInvalidTimestamp, "%v", err)
	}
	if session.Status != "active" {
		return Confirmation{}, reject(ReasonSessionNotActive, "session is not active: current status %q", session.Status)
	}

	// 4. Session time window, with grace on both edges.
	end := session.End()
	if now.Before(session.StartTime.Add(-s.cfg.Grace)) {
		return Confirmation{}, reject(ReasonSessionNotStarted, "session has not started yet: starts at %s",
			session.StartTime.Format(time.RFC3339))
	}
	if now.After(end.Add(s.cfg.Grace)) {
		return Confirmation{}, reject(ReasonSessionEnded, "session has ended: ended at %s", end.Format(time.RFC3339))
	}

	// 5. Geolocation proximity. Skipped entirely when the session carries no
	// classroom point; a miss is recorded on the attendance record and only
	// blocks when enforcement is on.
	var (
		distance   float64
		geoChecked bool
		outOfRange bool
	)
	if session.ClassroomLat != nil && session.ClassroomLon != nil {
		geoChecked = true
		distance = Haversine(*session.ClassroomLat, *session.ClassroomLon, claim.Latitude, claim.Longitude)
		if distance > s.cfg.RadiusMeters {
			outOfRange = true
			geoOutOfRangeTotal.Inc()
			if s.cfg.GeoEnforce {
				return Confirmation{}, reject(ReasonOutOfRange, "outside classroom range: %.1fm away, limit %.0fm",
					distance, s.cfg.RadiusMeters)
			}
			log.Printf("geo check failed for student %s in session %s: %.1fm > %.0fm, admitting anyway",
				studentID, claim.SessionID, distance, s.cfg.RadiusMeters)
		}
	}

	// Steps 6 and 7 are serialized per (session, student) so two concurrent
	// claims for the same pair cannot both pass the duplicate check.
	unlock := s.locks.Lock(claim.SessionID + "|" + studentID)
	defer unlock()

	// 6. Duplicate suppression pre-read. The atomic insert below is the real
	// guard; this read exists to answer repeats without burning an insert.
	attendanceCol := docstore.AttendanceCollection(s.cfg.AppID)
	existing, err := s.store.Query(ctx, attendanceCol, map[string]any{
		"sessionId": claim.SessionID,
		"studentId": studentID,
	}, 1)
	if err != nil {
		if s.cfg.StrictDuplicateCheck {
			return Confirmation{}, reject(ReasonStorageError, "duplicate check failed: %v", err)
		}
		log.Printf("duplicate check failed for session %s student %s, proceeding: %v", claim.SessionID, studentID, err)
	} else if len(existing) > 0 {
		return Confirmation{}, reject(ReasonAlreadyMarked, "attendance already marked for session %s", claim.SessionID)
	}

	// 7. Record creation.
	studentName := caller.FullName
	if studentName == "" {
		studentName = "Unknown Student"
	}
	rollNo := caller.RollNo
	if rollNo == "" {
		rollNo = "N/A"
	}

	record := map[string]any{
		"sessionId":           claim.SessionID,
		"classId":             claim.ClassID,
		"className":           claim.ClassName,
		"teacherId":           claim.TeacherID,
		"studentId":           studentID,
		"studentName":         studentName,
		"studentRollNo":       rollNo,
		"timestamp":           now.Format(time.RFC3339Nano),
		"status":              "present",
		"verified_latitude":   claim.Latitude,
		"verified_longitude":  claim.Longitude,
		"faceMatchConfidence": claim.FaceMatchConfidence,
		"ipAddress":           claim.IPAddress,
		"qrTimestamp":         qrTime.Format(time.RFC3339Nano),
	}
	if geoChecked {
		record["distanceMeters"] = distance
		record["outOfRange"] = outOfRange
	}

	id, inserted, err := s.store.AddUnique(ctx, attendanceCol, claim.SessionID+"|"+studentID, record)
	if err != nil {
		return Confirmation{}, reject(ReasonStorageError, "creating attendance record: %v", err)
	}
	if !inserted {
		return Confirmation{}, reject(ReasonAlreadyMarked, "attendance already marked for session %s", claim.SessionID)
	}

	return Confirmation{
		RecordID:    id,
		Message:     "Attendance marked successfully!",
		StudentName: studentName,
		RecordedAt:  now,
	}, nil
}
