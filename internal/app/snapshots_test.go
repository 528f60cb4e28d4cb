package app

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"inkwell/api/internal/content"
	"inkwell/api/internal/memstore"
	"inkwell/api/internal/store"
)

func TestSnapshotsNumberFromOne(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	owner := seedUser(t, mem, "u-a", "Ada", "ada@example.com")
	created, _ := svc.CreateDocument(ctx, owner, "Doc")

	if _, err := svc.UpdateDocument(ctx, owner, created.DocID, UpdateDocumentInput{Content: strPtr("first")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	first, err := svc.CreateSnapshot(ctx, owner, created.DocID)
	if err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}
	if first.Version != 1 || first.Content != "first" || first.CreatedBy != owner.UserID {
		t.Fatalf("unexpected first snapshot %+v", first)
	}

	if _, err := svc.UpdateDocument(ctx, owner, created.DocID, UpdateDocumentInput{Content: strPtr("second")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	second, err := svc.CreateSnapshot(ctx, owner, created.DocID)
	if err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("expected version 2, got %d", second.Version)
	}

	got, err := svc.GetSnapshot(ctx, owner, created.DocID, 1)
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if got.Content != "first" {
		t.Fatalf("snapshot 1 should keep its body, got %q", got.Content)
	}

	items, err := svc.ListSnapshots(ctx, owner, created.DocID)
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(items) != 2 || items[0].Version != 1 || items[1].Version != 2 {
		t.Fatalf("unexpected list %+v", items)
	}
	for _, item := range items {
		if item.Content != "" {
			t.Fatalf("listing should not carry bodies, got %+v", item)
		}
	}
}

func TestSnapshotPermissions(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	owner := seedUser(t, mem, "u-a", "Ada", "ada@example.com")
	viewer := seedUser(t, mem, "u-b", "Bo", "bo@example.com")
	stranger := seedUser(t, mem, "u-c", "Cy", "cy@example.com")
	created, _ := svc.CreateDocument(ctx, owner, "Doc")
	if _, err := svc.ShareDocument(ctx, owner, created.DocID, viewer.Email, "edit"); err != nil {
		t.Fatalf("share: %v", err)
	}
	if _, err := svc.CreateSnapshot(ctx, owner, created.DocID); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	_, err := svc.CreateSnapshot(ctx, viewer, created.DocID)
	assertKind(t, err, KindForbidden)

	if _, err := svc.ListSnapshots(ctx, viewer, created.DocID); err != nil {
		t.Fatalf("grantee list: %v", err)
	}
	if _, err := svc.GetSnapshot(ctx, viewer, created.DocID, 1); err != nil {
		t.Fatalf("grantee get: %v", err)
	}

	_, err = svc.ListSnapshots(ctx, stranger, created.DocID)
	assertKind(t, err, KindForbidden)
	_, err = svc.GetSnapshot(ctx, stranger, created.DocID, 1)
	assertKind(t, err, KindForbidden)

	_, err = svc.CreateSnapshot(ctx, owner, "missing")
	assertKind(t, err, KindNotFound)
}

func TestGetSnapshotMissing(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	owner := seedUser(t, mem, "u-a", "Ada", "ada@example.com")
	created, _ := svc.CreateDocument(ctx, owner, "Doc")

	_, err := svc.GetSnapshot(ctx, owner, created.DocID, 7)
	assertKind(t, err, KindNotFound)

	if _, err := svc.CreateSnapshot(ctx, owner, created.DocID); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := mem.Remove(ctx, content.VersionKey(created.DocID, 1)); err != nil {
		t.Fatalf("remove object: %v", err)
	}
	_, err = svc.GetSnapshot(ctx, owner, created.DocID, 1)
	assertKind(t, err, KindNotFound)
}

func TestSnapshotConcurrentNumberIsConflict(t *testing.T) {
	svc, mem, metadata, _ := newFaultyService(t)
	ctx := context.Background()
	owner := seedUser(t, mem, "u-a", "Ada", "ada@example.com")
	created, _ := svc.CreateDocument(ctx, owner, "Doc")

	metadata.putVersionFn = func(context.Context, store.Version) error {
		return store.ErrDuplicateVersion
	}
	_, err := svc.CreateSnapshot(ctx, owner, created.DocID)
	assertKind(t, err, KindConflict)
}

func TestSnapshotObjectFailureDropsRecord(t *testing.T) {
	svc, mem, _, contents := newFaultyService(t)
	ctx := context.Background()
	owner := seedUser(t, mem, "u-a", "Ada", "ada@example.com")
	created, _ := svc.CreateDocument(ctx, owner, "Doc")

	contents.writeObjectFn = func(context.Context, string, string) error {
		return errors.New("bucket offline")
	}
	_, err := svc.CreateSnapshot(ctx, owner, created.DocID)
	assertKind(t, err, KindStoreUnavailable)

	versions, err := mem.ListVersions(ctx, created.DocID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 0 {
		t.Fatalf("expected the reserved version to be dropped, got %+v", versions)
	}
}

func TestSnapshotFailedCleanupIsLogged(t *testing.T) {
	mem := memstore.New()
	metadata := &faultyMetadata{MetadataStore: mem}
	contents := &faultyContent{ContentStore: content.NewStore(mem)}
	core, logs := observer.New(zap.WarnLevel)
	svc := New(testConfig(), metadata, contents, mem, zap.New(core), nil)
	ctx := context.Background()
	owner := seedUser(t, mem, "u-a", "Ada", "ada@example.com")
	created, _ := svc.CreateDocument(ctx, owner, "Doc")

	contents.writeObjectFn = func(context.Context, string, string) error {
		return errors.New("bucket offline")
	}
	metadata.deleteVersionFn = func(context.Context, string, int) error {
		return errors.New("db offline")
	}
	_, err := svc.CreateSnapshot(ctx, owner, created.DocID)
	assertKind(t, err, KindStoreUnavailable)

	entries := logs.FilterMessage("snapshot record left without object").All()
	if len(entries) != 1 {
		t.Fatalf("expected one cleanup warning, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["version"]; got != int64(1) {
		t.Fatalf("expected version 1 in log, got %v", got)
	}
}
