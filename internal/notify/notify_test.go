package notify

import (
	"context"
	"strconv"
	"testing"

	"github.com/Dilip0552/PresenSync/internal/docstore"
	"github.com/Dilip0552/PresenSync/internal/queue"
	"github.com/Dilip0552/PresenSync/internal/users"
)

const testAppID = "test-app"

func seedProfiles(t *testing.T, store *docstore.Memory, uids ...string) {
	t.Helper()
	for _, uid := range uids {
		err := store.Put(context.Background(), docstore.ProfilesCollection(testAppID), uid, map[string]any{
			"fullName": "User " + uid,
			"role":     "student",
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestBroadcastTargetsEveryUser(t *testing.T) {
	store := docstore.NewMemory()
	seedProfiles(t, store, "u1", "u2", "u3")
	q := queue.NewInMemory(4)
	svc := NewService(store, users.NewRepository(store, testAppID), q, testAppID)

	count, err := svc.Broadcast(context.Background(), "hello", "", "admin")
	if err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Broadcast() count = %d, want 3", count)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	msg := <-messages
	if msg.Type != MessageType {
		t.Errorf("message type = %q, want %q", msg.Type, MessageType)
	}
	job, err := DecodeJob(msg.Body)
	if err != nil {
		t.Fatal(err)
	}
	if len(job.UIDs) != 3 {
		t.Errorf("job targets %d uids, want 3", len(job.UIDs))
	}
	if job.Type != "info" {
		t.Errorf("empty type defaulted to %q, want info", job.Type)
	}
}

func TestDeliverWritesPerUserFeed(t *testing.T) {
	store := docstore.NewMemory()
	svc := NewService(store, users.NewRepository(store, testAppID), queue.NewInMemory(1), testAppID)

	job := Job{Message: "exam moved", Type: "warning", Sender: "admin", UIDs: []string{"u1", "u2"}}
	if err := svc.Deliver(context.Background(), job); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	for _, uid := range job.UIDs {
		docs, err := store.Query(context.Background(), docstore.NotificationsCollection(testAppID, uid), nil, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(docs) != 1 {
			t.Fatalf("user %s feed holds %d notifications, want 1", uid, len(docs))
		}
		data := docs[0].Data
		if data["message"] != "exam moved" || data["type"] != "warning" || data["read"] != false || data["sender"] != "admin" {
			t.Errorf("notification for %s = %v", uid, data)
		}
	}
}

func TestDeliverChunksLargeFanouts(t *testing.T) {
	store := docstore.NewMemory()
	svc := NewService(store, users.NewRepository(store, testAppID), queue.NewInMemory(1), testAppID)

	uids := make([]string, batchLimit+7)
	for i := range uids {
		uids[i] = "user-" + strconv.Itoa(i)
	}
	if err := svc.Deliver(context.Background(), Job{Message: "m", Type: "info", UIDs: uids}); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if got := store.WriteCount(); got != len(uids) {
		t.Errorf("wrote %d notifications, want %d", got, len(uids))
	}
}
