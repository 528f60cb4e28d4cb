package app

import (
	"time"

	"inkwell/api/internal/store"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Identity is the verified caller. The service trusts it as given.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type DocumentSummary struct {
	DocID     string `json:"docId"`
	Title     string `json:"title"`
	OwnerID   string `json:"ownerId"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type SharedDocument struct {
	DocumentSummary
	Permission string `json:"permission"`
}

type DocumentWithContent struct {
	DocumentSummary
	Content string `json:"content"`
}

// UpdateDocumentInput distinguishes an absent field (nil) from an empty one.
type UpdateDocumentInput struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type UpdateResult struct {
	Success   bool   `json:"success"`
	UpdatedAt string `json:"updatedAt"`
}

type Collaborator struct {
	UserID     string `json:"userId"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Permission string `json:"permission"`
}

type Snapshot struct {
	DocID     string `json:"docId"`
	Version   int    `json:"version"`
	CreatedBy string `json:"createdBy"`
	CreatedAt string `json:"createdAt"`
	Content   string `json:"content,omitempty"`
}

type UserProfile struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type Session struct {
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
	User         UserProfile
}

func summaryFromDocument(doc store.Document) DocumentSummary {
	return DocumentSummary{
		DocID:     doc.ID,
		Title:     doc.Title,
		OwnerID:   doc.OwnerID,
		CreatedAt: formatTime(doc.CreatedAt),
		UpdatedAt: formatTime(doc.UpdatedAt),
	}
}

func profileFromUser(user store.User) UserProfile {
	return UserProfile{
		UserID:    user.ID,
		Name:      user.DisplayName,
		Email:     user.Email,
		CreatedAt: formatTime(user.CreatedAt),
		UpdatedAt: formatTime(user.UpdatedAt),
	}
}

func snapshotFromVersion(version store.Version) Snapshot {
	return Snapshot{
		DocID:     version.DocumentID,
		Version:   version.Version,
		CreatedBy: version.CreatedBy,
		CreatedAt: formatTime(version.CreatedAt),
	}
}
