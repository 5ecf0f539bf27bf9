package session

import (
	"context"
	"errors"
	"time"

	"github.com/Dilip0552/PresenSync/internal/docstore"
)

// ErrNotFound is returned when a session id does not exist for the teacher.
var ErrNotFound = errors.New("session not found")

// Record is a scheduled class session owned by a teacher.
type Record struct {
	ID           string   `json:"id"`
	ClassID      string   `json:"classId" binding:"required"`
	ClassName    string   `json:"className"`
	Status       string   `json:"status"`
	StartTime    string   `json:"startTime" binding:"required,isodate"`
	Duration     int      `json:"duration" binding:"required,gt=0"`
	DurationUnit string   `json:"durationUnit" binding:"required,oneof=min hrs"`
	ClassroomLat *float64 `json:"classroomLat,omitempty"`
	ClassroomLon *float64 `json:"classroomLon,omitempty"`
	CreatedAt    string   `json:"createdAt,omitempty"`
}

// Repository persists session records in the document store.
type Repository struct {
	store docstore.Store
	appID string
}

// NewRepository creates a session repository.
func NewRepository(store docstore.Store, appID string) *Repository {
	return &Repository{store: store, appID: appID}
}

// Create stores a new session, defaulting its status to "scheduled".
func (r *Repository) Create(ctx context.Context, teacherID string, rec Record) (string, error) {
	if rec.Status == "" {
		rec.Status = "scheduled"
	}
	rec.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	return r.store.Add(ctx, docstore.SessionsCollection(r.appID, teacherID), toDoc(rec))
}

// Get returns one session by (teacher, id).
func (r *Repository) Get(ctx context.Context, teacherID, id string) (Record, error) {
	doc, err := r.store.Get(ctx, docstore.SessionsCollection(r.appID, teacherID), id)
	if errors.Is(err, docstore.ErrNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return fromDoc(doc), nil
}

// List returns every session owned by the teacher.
func (r *Repository) List(ctx context.Context, teacherID string) ([]Record, error) {
	docs, err := r.store.Query(ctx, docstore.SessionsCollection(r.appID, teacherID), nil, 0)
	if err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(docs))
	for _, doc := range docs {
		recs = append(recs, fromDoc(doc))
	}
	return recs, nil
}

// SetStatus transitions a session to a new lifecycle status.
func (r *Repository) SetStatus(ctx context.Context, teacherID, id, status string) error {
	col := docstore.SessionsCollection(r.appID, teacherID)
	doc, err := r.store.Get(ctx, col, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	doc.Data["status"] = status
	return r.store.Put(ctx, col, id, doc.Data)
}

func toDoc(rec Record) map[string]any {
	data := map[string]any{
		"classId":      rec.ClassID,
		"className":    rec.ClassName,
		"status":       rec.Status,
		"startTime":    rec.StartTime,
		"duration":     rec.Duration,
		"durationUnit": rec.DurationUnit,
		"createdAt":    rec.CreatedAt,
	}
	if rec.ClassroomLat != nil {
		data["classroomLat"] = *rec.ClassroomLat
	}
	if rec.ClassroomLon != nil {
		data["classroomLon"] = *rec.ClassroomLon
	}
	return data
}

func fromDoc(doc docstore.Doc) Record {
	data := doc.Data
	rec := Record{
		ID:           doc.ID,
		ClassID:      str(data["classId"]),
		ClassName:    str(data["className"]),
		Status:       str(data["status"]),
		StartTime:    str(data["startTime"]),
		DurationUnit: str(data["durationUnit"]),
		CreatedAt:    str(data["createdAt"]),
	}
	switch d := data["duration"].(type) {
	case float64:
		rec.Duration = int(d)
	case int:
		rec.Duration = d
	}
	if lat, ok := data["classroomLat"].(float64); ok {
		rec.ClassroomLat = &lat
	}
	if lon, ok := data["classroomLon"].(float64); ok {
		rec.ClassroomLon = &lon
	}
	return rec
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
