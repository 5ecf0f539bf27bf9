package session

import (
	"encoding/json"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

// QRPayload is what a session admission QR code encodes. GeneratedAt is the
// timestamp the liveness window is measured against.
type QRPayload struct {
	SessionID   string `json:"sessionId"`
	TeacherID   string `json:"teacherId"`
	ClassID     string `json:"classId"`
	ClassName   string `json:"className"`
	GeneratedAt string `json:"timestamp"`
}

// NewQRPayload builds the payload for a session, stamped with the current UTC
// time.
func NewQRPayload(rec Record, teacherID string) QRPayload {
	return QRPayload{
		SessionID:   rec.ID,
		TeacherID:   teacherID,
		ClassID:     rec.ClassID,
		ClassName:   rec.ClassName,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// MintQR renders the payload as a PNG of the given pixel size.
func MintQR(payload QRPayload, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(string(raw), qrcode.Medium, size)
}
