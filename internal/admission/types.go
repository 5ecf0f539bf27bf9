package admission

import (
	"fmt"
	"time"
)

// Claim is a caller-submitted attendance assertion. It lives only for the
// duration of one request; the student identity is taken from the verified
// caller, never from the claim itself.
type Claim struct {
	SessionID           string  `json:"sessionId" binding:"required"`
	StudentID           string  `json:"studentId" binding:"required"`
	QRTimestamp         string  `json:"timestamp" binding:"required"`
	Latitude            float64 `json:"latitude" binding:"latitude"`
	Longitude           float64 `json:"longitude" binding:"longitude"`
	FaceMatchConfidence float64 `json:"faceMatchConfidence"`
	IPAddress           string  `json:"ipAddress"`
	ClassID             string  `json:"classId" binding:"required"`
	ClassName           string  `json:"className"`
	TeacherID           string  `json:"teacherId" binding:"required"`
}

// Caller is the authenticated identity submitting a claim.
type Caller struct {
	UID      string
	FullName string
	RollNo   string
	Role     string
}

// Session is the scheduling record a claim is validated against.
type Session struct {
	Status       string
	StartTime    time.Time
	Duration     int
	DurationUnit string
	ClassroomLat *float64
	ClassroomLon *float64
}

// End computes the nominal session end from the start and the duration,
// normalized to minutes.
func (s Session) End() time.Time {
	minutes := s.Duration
	if s.DurationUnit == "hrs" {
		minutes *= 60
	}
	return s.StartTime.Add(time.Duration(minutes) * time.Minute)
}

// Confirmation is returned on a successful admission.
type Confirmation struct {
	RecordID    string    `json:"recordId"`
	Message     string    `json:"message"`
	StudentName string    `json:"studentName"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// parseSession maps a raw session document onto Session. A missing or
// malformed startTime is reported so the pipeline can reject the claim.
func parseSession(data map[string]any) (Session, error) {
	s := Session{
		Status:       asString(data["status"]),
		DurationUnit: asString(data["durationUnit"]),
	}
	start, ok := data["startTime"].(string)
	if !ok {
		return Session{}, fmt.Errorf("session has no startTime")
	}
	t, err := ParseTimestamp(start)
	if err != nil {
		return Session{}, fmt.Errorf("invalid session start time %q: %w", start, err)
	}
	s.StartTime = t

	if d, ok := asFloat(data["duration"]); ok {
		s.Duration = int(d)
	} else {
		s.Duration = 60
	}
	if lat, ok := asFloat(data["classroomLat"]); ok {
		s.ClassroomLat = &lat
	}
	if lon, ok := asFloat(data["classroomLon"]); ok {
		s.ClassroomLon = &lon
	}
	return s, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asFloat accepts the numeric types a JSON document round-trip can produce.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
