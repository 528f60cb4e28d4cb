package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateEmail   = errors.New("email already registered")
	ErrDuplicateVersion = errors.New("version already recorded")
)

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Document is the metadata record. The body lives in the content store.
type Document struct {
	ID        string
	Title     string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Grant struct {
	DocumentID string
	UserID     string
	Permission string
	CreatedAt  time.Time
}

// Version records a content snapshot stored under ObjectKey.
type Version struct {
	DocumentID string
	Version    int
	ObjectKey  string
	CreatedBy  string
	CreatedAt  time.Time
}
