package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dilip0552/PresenSync/internal/docstore"
	"github.com/Dilip0552/PresenSync/internal/queue"
	"github.com/Dilip0552/PresenSync/internal/users"
)

// MessageType is the queue message type carrying fan-out jobs.
const MessageType = "notify"

// batchLimit caps documents per batched write.
const batchLimit = 500

// Job is one queued fan-out: a notification to be written to every listed
// user's feed.
type Job struct {
	Message string   `json:"message"`
	Type    string   `json:"type"`
	Sender  string   `json:"sender"`
	UIDs    []string `json:"uids"`
}

// Service broadcasts notifications to all users via the queue and delivers
// queued jobs in batched writes.
type Service struct {
	store    docstore.Store
	profiles *users.Repository
	q        queue.Queue
	appID    string
}

// NewService creates a notification service.
func NewService(store docstore.Store, profiles *users.Repository, q queue.Queue, appID string) *Service {
	return &Service{store: store, profiles: profiles, q: q, appID: appID}
}

// Broadcast enqueues a notification for every known user and returns how many
// users it targets. Delivery happens asynchronously in the worker.
func (s *Service) Broadcast(ctx context.Context, message, typ, sender string) (int, error) {
	if typ == "" {
		typ = "info"
	}
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing users: %w", err)
	}
	uids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		uids = append(uids, p.UID)
	}

	job := Job{Message: message, Type: typ, Sender: sender, UIDs: uids}
	body, err := json.Marshal(job)
	if err != nil {
		return 0, err
	}
	if err := s.q.Publish(ctx, queue.Message{Type: MessageType, Body: body}); err != nil {
		return 0, fmt.Errorf("enqueue notification: %w", err)
	}
	return len(uids), nil
}

// Deliver writes one notification document per target user, batched.
func (s *Service) Deliver(ctx context.Context, job Job) error {
	createdAt := time.Now().UTC().Format(time.RFC3339)
	data := map[string]any{
		"message":   job.Message,
		"type":      job.Type,
		"createdAt": createdAt,
		"read":      false,
		"sender":    job.Sender,
	}

	var batch []docstore.BatchDoc
	for _, uid := range job.UIDs {
		batch = append(batch, docstore.BatchDoc{
			Collection: docstore.NotificationsCollection(s.appID, uid),
			Data:       data,
		})
		if len(batch) == batchLimit {
			if err := s.store.BatchSet(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		return s.store.BatchSet(ctx, batch)
	}
	return nil
}

// DecodeJob parses a queued fan-out message body.
func DecodeJob(body []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Job{}, fmt.Errorf("decode notify job: %w", err)
	}
	return job, nil
}
