package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dilip0552/PresenSync/internal/docstore"
)

// ErrProfileNotFound is returned when a uid has no public profile document.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is a user's public profile: the fields denormalized onto attendance
// records plus the role the auth layer gates on.
type Profile struct {
	UID      string `json:"uid"`
	FullName string `json:"fullName"`
	RollNo   string `json:"rollNo"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

// privateProfileDocID is the fixed id of the single document in a user's
// private profile collection.
const privateProfileDocID = "userProfile"

// Repository reads and writes user profiles in the document store.
type Repository struct {
	store docstore.Store
	appID string
}

// NewRepository creates a profile repository.
func NewRepository(store docstore.Store, appID string) *Repository {
	return &Repository{store: store, appID: appID}
}

// Get returns the public profile for uid.
func (r *Repository) Get(ctx context.Context, uid string) (Profile, error) {
	doc, err := r.store.Get(ctx, docstore.ProfilesCollection(r.appID), uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	return profileFromDoc(uid, doc.Data), nil
}

// List returns every public profile.
func (r *Repository) List(ctx context.Context) ([]Profile, error) {
	docs, err := r.store.Query(ctx, docstore.ProfilesCollection(r.appID), nil, 0)
	if err != nil {
		return nil, err
	}
	profiles := make([]Profile, 0, len(docs))
	for _, doc := range docs {
		profiles = append(profiles, profileFromDoc(doc.ID, doc.Data))
	}
	return profiles, nil
}

// UpdateRole sets the role on both the public and the private profile
// document, mirroring how the web client reads them.
func (r *Repository) UpdateRole(ctx context.Context, uid, role string) error {
	publicCol := docstore.ProfilesCollection(r.appID)
	doc, err := r.store.Get(ctx, publicCol, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrProfileNotFound
	}
	if err != nil {
		return err
	}
	doc.Data["role"] = role
	if err := r.store.Put(ctx, publicCol, uid, doc.Data); err != nil {
		return fmt.Errorf("update public profile: %w", err)
	}

	privateCol := docstore.PrivateProfileCollection(r.appID, uid)
	private, err := r.store.Get(ctx, privateCol, privateProfileDocID)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	if private.Data == nil {
		private.Data = map[string]any{}
	}
	private.Data["role"] = role
	if err := r.store.Put(ctx, privateCol, privateProfileDocID, private.Data); err != nil {
		return fmt.Errorf("update private profile: %w", err)
	}
	return nil
}

// Delete removes the public and private profile documents for uid. User
// subcollections (classes, sessions, notifications) are left in place.
func (r *Repository) Delete(ctx context.Context, uid string) error {
	if err := r.store.Delete(ctx, docstore.ProfilesCollection(r.appID), uid); err != nil {
		return err
	}
	return r.store.Delete(ctx, docstore.PrivateProfileCollection(r.appID, uid), privateProfileDocID)
}

func profileFromDoc(uid string, data map[string]any) Profile {
	p := Profile{
		UID:  uid,
		Role: "student",
	}
	if v, ok := data["fullName"].(string); ok {
		p.FullName = v
	}
	if v, ok := data["rollNo"].(string); ok {
		p.RollNo = v
	}
	if v, ok := data["email"].(string); ok {
		p.Email = v
	}
	if v, ok := data["role"].(string); ok && v != "" {
		p.Role = v
	}
	return p
}
