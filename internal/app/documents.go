package app

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"inkwell/api/internal/rbac"
	"inkwell/api/internal/store"
)

func (s *Service) loadDocument(ctx context.Context, docID, message string) (store.Document, error) {
	doc, err := s.metadata.GetDocument(ctx, docID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Document{}, notFound("Document not found.")
	}
	if err != nil {
		return store.Document{}, s.storeFailure(storeMetadata, "get document", message, err)
	}
	return doc, nil
}

// authorize runs a fresh access decision for every call.
func (s *Service) authorize(ctx context.Context, identity Identity, doc store.Document, need rbac.Level, message string) (rbac.Level, error) {
	level, allowed, err := s.access.Authorize(ctx, identity.UserID, rbac.Resource{ID: doc.ID, OwnerID: doc.OwnerID}, need)
	if err != nil {
		return "", s.storeFailure(storeMetadata, "authorize", message, err)
	}
	if !allowed {
		return "", forbidden("Access denied.")
	}
	return level, nil
}

func requireOwner(identity Identity, doc store.Document, message string) error {
	if doc.OwnerID != identity.UserID {
		return forbidden(message)
	}
	return nil
}

// CreateDocument writes the metadata record and then an empty body. A failed
// body write leaves the record in place; reads of it return "".
func (s *Service) CreateDocument(ctx context.Context, identity Identity, title string) (summary DocumentSummary, err error) {
	defer s.observe("create", &err)

	title = strings.TrimSpace(title)
	if title == "" {
		return DocumentSummary{}, invalidArgument("Document title is required.")
	}

	now := s.timestamp()
	doc := store.Document{
		ID:        s.newID(),
		Title:     title,
		OwnerID:   identity.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.metadata.PutDocument(ctx, doc); err != nil {
		return DocumentSummary{}, s.storeFailure(storeMetadata, "put document", "Failed to create document.", err)
	}
	if err := s.content.Write(ctx, doc.ID, ""); err != nil {
		return DocumentSummary{}, s.storeFailure(storeContent, "write initial content", "Failed to create document.", err)
	}
	return summaryFromDocument(doc), nil
}

func (s *Service) GetDocument(ctx context.Context, identity Identity, docID string) (result DocumentWithContent, err error) {
	defer s.observe("get", &err)

	doc, err := s.loadDocument(ctx, docID, "Failed to get document.")
	if err != nil {
		return DocumentWithContent{}, err
	}
	if _, err := s.authorize(ctx, identity, doc, rbac.LevelView, "Failed to get document."); err != nil {
		return DocumentWithContent{}, err
	}

	body, err := s.content.Read(ctx, doc.ID)
	if err != nil {
		return DocumentWithContent{}, s.storeFailure(storeContent, "read content", "Failed to get document.", err)
	}
	return DocumentWithContent{DocumentSummary: summaryFromDocument(doc), Content: body}, nil
}

// UpdateDocument is owner-only, stricter than an edit grant. Content is
// written before the metadata update and the two are not atomic, so
// concurrent updates resolve last-writer-wins per store.
func (s *Service) UpdateDocument(ctx context.Context, identity Identity, docID string, input UpdateDocumentInput) (result UpdateResult, err error) {
	defer s.observe("update", &err)

	// A blank title is ignored rather than stored.
	var title *string
	if input.Title != nil {
		if trimmed := strings.TrimSpace(*input.Title); trimmed != "" {
			title = &trimmed
		}
	}
	if title == nil && input.Content == nil {
		return UpdateResult{}, invalidArgument("At least title or content is required for update.")
	}

	doc, err := s.loadDocument(ctx, docID, "Failed to update document.")
	if err != nil {
		return UpdateResult{}, err
	}
	if err := requireOwner(identity, doc, "Only the owner can update this document."); err != nil {
		return UpdateResult{}, err
	}

	now := s.timestamp()
	if input.Content != nil {
		if err := s.content.Write(ctx, doc.ID, *input.Content); err != nil {
			return UpdateResult{}, s.storeFailure(storeContent, "write content", "Failed to update document.", err)
		}
	}
	if err := s.metadata.UpdateDocument(ctx, doc.ID, title, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UpdateResult{}, notFound("Document not found.")
		}
		return UpdateResult{}, s.storeFailure(storeMetadata, "update document", "Failed to update document.", err)
	}
	return UpdateResult{Success: true, UpdatedAt: formatTime(now)}, nil
}

// DeleteDocument removes the record, then grants, then snapshots, then the
// body. There is no rollback: a failure part way leaves the later steps
// undone.
func (s *Service) DeleteDocument(ctx context.Context, identity Identity, docID string) (err error) {
	defer s.observe("delete", &err)

	doc, err := s.loadDocument(ctx, docID, "Failed to delete document.")
	if err != nil {
		return err
	}
	if err := requireOwner(identity, doc, "Only the owner can delete a document."); err != nil {
		return err
	}

	fail := func(storeName, step string, cause error) error {
		s.log.Warn("document partially deleted", zap.String("doc_id", doc.ID), zap.String("failed_step", step))
		return s.storeFailure(storeName, step, "Failed to delete document.", cause)
	}

	if err := s.metadata.DeleteDocument(ctx, doc.ID); err != nil {
		return s.storeFailure(storeMetadata, "delete document", "Failed to delete document.", err)
	}

	grants, err := s.metadata.ListGrantsByDocument(ctx, doc.ID)
	if err != nil {
		return fail(storeMetadata, "list grants", err)
	}
	for _, grant := range grants {
		if err := s.metadata.DeleteGrant(ctx, grant.DocumentID, grant.UserID); err != nil {
			return fail(storeMetadata, "delete grant", err)
		}
	}

	versions, err := s.metadata.ListVersions(ctx, doc.ID)
	if err != nil {
		return fail(storeMetadata, "list versions", err)
	}
	for _, version := range versions {
		if err := s.metadata.DeleteVersion(ctx, version.DocumentID, version.Version); err != nil {
			return fail(storeMetadata, "delete version", err)
		}
		if err := s.content.RemoveObject(ctx, version.ObjectKey); err != nil {
			return fail(storeContent, "remove version object", err)
		}
	}

	if err := s.content.Delete(ctx, doc.ID); err != nil {
		return fail(storeContent, "delete content", err)
	}
	return nil
}

func (s *Service) ListOwned(ctx context.Context, identity Identity) ([]DocumentSummary, error) {
	docs, err := s.metadata.ListDocumentsByOwner(ctx, identity.UserID)
	if err != nil {
		return nil, s.storeFailure(storeMetadata, "list owned", "Failed to list owned documents.", err)
	}
	items := make([]DocumentSummary, 0, len(docs))
	for _, doc := range docs {
		items = append(items, summaryFromDocument(doc))
	}
	return items, nil
}

// ListShared fetches each granted document individually. Grants whose
// document is gone, or that point at the caller's own documents, are skipped.
func (s *Service) ListShared(ctx context.Context, identity Identity) ([]SharedDocument, error) {
	grants, err := s.metadata.ListGrantsByUser(ctx, identity.UserID)
	if err != nil {
		return nil, s.storeFailure(storeMetadata, "list grants", "Failed to list shared documents.", err)
	}

	items := make([]SharedDocument, 0, len(grants))
	for _, grant := range grants {
		doc, err := s.metadata.GetDocument(ctx, grant.DocumentID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, s.storeFailure(storeMetadata, "get document", "Failed to list shared documents.", err)
		}
		if doc.OwnerID == identity.UserID {
			continue
		}
		items = append(items, SharedDocument{DocumentSummary: summaryFromDocument(doc), Permission: grant.Permission})
	}
	return items, nil
}
