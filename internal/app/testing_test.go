package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"inkwell/api/internal/config"
	"inkwell/api/internal/content"
	"inkwell/api/internal/memstore"
	"inkwell/api/internal/store"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		CORSOrigin: "*",
	}
}

func newTestService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	mem := memstore.New()
	return New(testConfig(), mem, content.NewStore(mem), mem, nil, nil), mem
}

// seedUser writes a user record directly, skipping password hashing.
func seedUser(t *testing.T, mem *memstore.Store, id, name, email string) Identity {
	t.Helper()
	err := mem.CreateUser(context.Background(), store.User{
		ID:          id,
		DisplayName: name,
		Email:       email,
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return Identity{UserID: id, Email: email}
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected %s domain error, got %v", want, err)
	}
	if domainErr.Kind != want {
		t.Fatalf("expected %s, got %s (%s)", want, domainErr.Kind, domainErr.Message)
	}
}

// faultyMetadata overrides selected metadata calls.
type faultyMetadata struct {
	MetadataStore
	getGrantFn             func(context.Context, string, string) (store.Grant, error)
	listGrantsByDocumentFn func(context.Context, string) ([]store.Grant, error)
	putVersionFn           func(context.Context, store.Version) error
	deleteVersionFn        func(context.Context, string, int) error
}

func (f *faultyMetadata) DeleteVersion(ctx context.Context, docID string, version int) error {
	if f.deleteVersionFn != nil {
		return f.deleteVersionFn(ctx, docID, version)
	}
	return f.MetadataStore.DeleteVersion(ctx, docID, version)
}

func (f *faultyMetadata) GetGrant(ctx context.Context, docID, userID string) (store.Grant, error) {
	if f.getGrantFn != nil {
		return f.getGrantFn(ctx, docID, userID)
	}
	return f.MetadataStore.GetGrant(ctx, docID, userID)
}

func (f *faultyMetadata) ListGrantsByDocument(ctx context.Context, docID string) ([]store.Grant, error) {
	if f.listGrantsByDocumentFn != nil {
		return f.listGrantsByDocumentFn(ctx, docID)
	}
	return f.MetadataStore.ListGrantsByDocument(ctx, docID)
}

func (f *faultyMetadata) PutVersion(ctx context.Context, version store.Version) error {
	if f.putVersionFn != nil {
		return f.putVersionFn(ctx, version)
	}
	return f.MetadataStore.PutVersion(ctx, version)
}

// faultyContent overrides selected content calls.
type faultyContent struct {
	ContentStore
	writeFn       func(context.Context, string, string) error
	readFn        func(context.Context, string) (string, error)
	deleteFn      func(context.Context, string) error
	pingFn        func(context.Context) error
	writeObjectFn func(context.Context, string, string) error
}

func (f *faultyContent) WriteObject(ctx context.Context, key, text string) error {
	if f.writeObjectFn != nil {
		return f.writeObjectFn(ctx, key, text)
	}
	return f.ContentStore.WriteObject(ctx, key, text)
}

func (f *faultyContent) Write(ctx context.Context, docID, text string) error {
	if f.writeFn != nil {
		return f.writeFn(ctx, docID, text)
	}
	return f.ContentStore.Write(ctx, docID, text)
}

func (f *faultyContent) Read(ctx context.Context, docID string) (string, error) {
	if f.readFn != nil {
		return f.readFn(ctx, docID)
	}
	return f.ContentStore.Read(ctx, docID)
}

func (f *faultyContent) Delete(ctx context.Context, docID string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, docID)
	}
	return f.ContentStore.Delete(ctx, docID)
}

func (f *faultyContent) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return f.ContentStore.Ping(ctx)
}

func newFaultyService(t *testing.T) (*Service, *memstore.Store, *faultyMetadata, *faultyContent) {
	t.Helper()
	mem := memstore.New()
	metadata := &faultyMetadata{MetadataStore: mem}
	contents := &faultyContent{ContentStore: content.NewStore(mem)}
	return New(testConfig(), metadata, contents, mem, nil, nil), mem, metadata, contents
}

func strPtr(value string) *string {
	return &value
}
