package app

import (
	"context"
	"errors"
	"strings"

	"inkwell/api/internal/authpw"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/store"
)

const ownerPermission = string(rbac.LevelOwner)

// ListCollaborators returns the owner first, then every grantee that still
// resolves to a user, in grant order.
func (s *Service) ListCollaborators(ctx context.Context, identity Identity, docID string) (items []Collaborator, err error) {
	defer s.observe("list_collaborators", &err)

	doc, err := s.loadDocument(ctx, docID, "Failed to list collaborators.")
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, identity, doc, rbac.LevelView, "Failed to list collaborators."); err != nil {
		return nil, err
	}

	owner, err := s.metadata.GetUserByID(ctx, doc.OwnerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Owner not found.")
	}
	if err != nil {
		return nil, s.storeFailure(storeMetadata, "get owner", "Failed to list collaborators.", err)
	}

	grants, err := s.metadata.ListGrantsByDocument(ctx, doc.ID)
	if err != nil {
		return nil, s.storeFailure(storeMetadata, "list grants", "Failed to list collaborators.", err)
	}

	items = make([]Collaborator, 0, len(grants)+1)
	items = append(items, Collaborator{UserID: owner.ID, Name: owner.DisplayName, Email: owner.Email, Permission: ownerPermission})
	if len(grants) == 0 {
		return items, nil
	}

	userIDs := make([]string, 0, len(grants))
	for _, grant := range grants {
		userIDs = append(userIDs, grant.UserID)
	}
	users, err := s.metadata.GetUsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, s.storeFailure(storeMetadata, "batch get users", "Failed to list collaborators.", err)
	}
	for _, grant := range grants {
		user, ok := users[grant.UserID]
		if !ok || user.ID == doc.OwnerID {
			continue
		}
		items = append(items, Collaborator{UserID: user.ID, Name: user.DisplayName, Email: user.Email, Permission: grant.Permission})
	}
	return items, nil
}

func parsePermission(permission string, message string) (rbac.Level, error) {
	level, ok := rbac.ParseGrant(permission)
	if !ok {
		return "", invalidArgument(message)
	}
	return level, nil
}

// ShareDocument grants email the permission, replacing any earlier grant.
func (s *Service) ShareDocument(ctx context.Context, identity Identity, docID, email, permission string) (result Collaborator, err error) {
	defer s.observe("share", &err)

	email = authpw.NormalizeEmail(email)
	if email == "" {
		return Collaborator{}, invalidArgument("Email and a valid permission (view/edit) are required.")
	}
	level, err := parsePermission(permission, "Email and a valid permission (view/edit) are required.")
	if err != nil {
		return Collaborator{}, err
	}

	doc, err := s.loadDocument(ctx, docID, "Failed to share document.")
	if err != nil {
		return Collaborator{}, err
	}
	if err := requireOwner(identity, doc, "Only the owner can share this document."); err != nil {
		return Collaborator{}, err
	}

	target, err := s.metadata.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Collaborator{}, notFound("User with email " + email + " not found.")
	}
	if err != nil {
		return Collaborator{}, s.storeFailure(storeMetadata, "get user by email", "Failed to share document.", err)
	}
	if target.ID == doc.OwnerID {
		return Collaborator{}, invalidArgument("Cannot share a document with its owner.")
	}

	if err := s.metadata.PutGrant(ctx, store.Grant{
		DocumentID: doc.ID,
		UserID:     target.ID,
		Permission: string(level),
		CreatedAt:  s.timestamp(),
	}); err != nil {
		return Collaborator{}, s.storeFailure(storeMetadata, "put grant", "Failed to share document.", err)
	}

	return Collaborator{UserID: target.ID, Name: target.DisplayName, Email: target.Email, Permission: string(level)}, nil
}

// UpdateCollaboratorPermission changes an existing grant and never creates one.
func (s *Service) UpdateCollaboratorPermission(ctx context.Context, identity Identity, docID, userID, permission string) (err error) {
	defer s.observe("update_permission", &err)

	level, err := parsePermission(permission, "Valid permission (view/edit) is required.")
	if err != nil {
		return err
	}
	doc, err := s.loadDocument(ctx, docID, "Failed to update permission.")
	if err != nil {
		return err
	}
	if err := requireOwner(identity, doc, "Only the owner can update permissions."); err != nil {
		return err
	}

	found, err := s.metadata.UpdateGrantPermission(ctx, doc.ID, strings.TrimSpace(userID), string(level))
	if err != nil {
		return s.storeFailure(storeMetadata, "update grant", "Failed to update permission.", err)
	}
	if !found {
		return notFound("Collaborator not found.")
	}
	return nil
}

// RemoveCollaborator deletes the grant. Removing a missing grant succeeds.
func (s *Service) RemoveCollaborator(ctx context.Context, identity Identity, docID, userID string) (err error) {
	defer s.observe("revoke", &err)

	doc, err := s.loadDocument(ctx, docID, "Failed to remove collaborator.")
	if err != nil {
		return err
	}
	if err := requireOwner(identity, doc, "Only the owner can remove collaborators."); err != nil {
		return err
	}
	if err := s.metadata.DeleteGrant(ctx, doc.ID, strings.TrimSpace(userID)); err != nil {
		return s.storeFailure(storeMetadata, "delete grant", "Failed to remove collaborator.", err)
	}
	return nil
}
