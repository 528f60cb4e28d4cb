package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"inkwell/api/internal/content"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/store"
)

// CreateSnapshot copies the current body into the next numbered version.
// Versions are only created here; nothing snapshots implicitly.
func (s *Service) CreateSnapshot(ctx context.Context, identity Identity, docID string) (snapshot Snapshot, err error) {
	defer s.observe("snapshot", &err)

	doc, err := s.loadDocument(ctx, docID, "Failed to create snapshot.")
	if err != nil {
		return Snapshot{}, err
	}
	if err := requireOwner(identity, doc, "Only the owner can snapshot this document."); err != nil {
		return Snapshot{}, err
	}

	body, err := s.content.Read(ctx, doc.ID)
	if err != nil {
		return Snapshot{}, s.storeFailure(storeContent, "read content", "Failed to create snapshot.", err)
	}
	existing, err := s.metadata.ListVersions(ctx, doc.ID)
	if err != nil {
		return Snapshot{}, s.storeFailure(storeMetadata, "list versions", "Failed to create snapshot.", err)
	}
	next := 1
	for _, version := range existing {
		if version.Version >= next {
			next = version.Version + 1
		}
	}

	// Reserve the version number before writing its object.
	record := store.Version{
		DocumentID: doc.ID,
		Version:    next,
		ObjectKey:  content.VersionKey(doc.ID, next),
		CreatedBy:  identity.UserID,
		CreatedAt:  s.timestamp(),
	}
	if err := s.metadata.PutVersion(ctx, record); err != nil {
		if errors.Is(err, store.ErrDuplicateVersion) {
			return Snapshot{}, conflict("Another snapshot was created concurrently, retry.")
		}
		return Snapshot{}, s.storeFailure(storeMetadata, "put version", "Failed to create snapshot.", err)
	}
	if err := s.content.WriteObject(ctx, record.ObjectKey, body); err != nil {
		if dropErr := s.metadata.DeleteVersion(ctx, record.DocumentID, record.Version); dropErr != nil {
			s.log.Warn("snapshot record left without object",
				zap.String("doc_id", record.DocumentID),
				zap.Int("version", record.Version),
				zap.Error(dropErr),
			)
		}
		return Snapshot{}, s.storeFailure(storeContent, "write version object", "Failed to create snapshot.", err)
	}

	snapshot = snapshotFromVersion(record)
	snapshot.Content = body
	return snapshot, nil
}

func (s *Service) ListSnapshots(ctx context.Context, identity Identity, docID string) ([]Snapshot, error) {
	doc, err := s.loadDocument(ctx, docID, "Failed to list snapshots.")
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, identity, doc, rbac.LevelView, "Failed to list snapshots."); err != nil {
		return nil, err
	}

	versions, err := s.metadata.ListVersions(ctx, doc.ID)
	if err != nil {
		return nil, s.storeFailure(storeMetadata, "list versions", "Failed to list snapshots.", err)
	}
	items := make([]Snapshot, 0, len(versions))
	for _, version := range versions {
		items = append(items, snapshotFromVersion(version))
	}
	return items, nil
}

func (s *Service) GetSnapshot(ctx context.Context, identity Identity, docID string, number int) (Snapshot, error) {
	doc, err := s.loadDocument(ctx, docID, "Failed to get snapshot.")
	if err != nil {
		return Snapshot{}, err
	}
	if _, err := s.authorize(ctx, identity, doc, rbac.LevelView, "Failed to get snapshot."); err != nil {
		return Snapshot{}, err
	}

	version, err := s.metadata.GetVersion(ctx, doc.ID, number)
	if errors.Is(err, store.ErrNotFound) {
		return Snapshot{}, notFound("Snapshot not found.")
	}
	if err != nil {
		return Snapshot{}, s.storeFailure(storeMetadata, "get version", "Failed to get snapshot.", err)
	}

	body, err := s.content.ReadObject(ctx, version.ObjectKey)
	if errors.Is(err, content.ErrObjectNotFound) {
		return Snapshot{}, notFound("Snapshot content not found.")
	}
	if err != nil {
		return Snapshot{}, s.storeFailure(storeContent, "read version object", "Failed to get snapshot.", err)
	}

	snapshot := snapshotFromVersion(version)
	snapshot.Content = body
	return snapshot, nil
}
