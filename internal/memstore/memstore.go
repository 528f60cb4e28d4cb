// Package memstore is a process-local metadata, session and object store
// used for development and tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"inkwell/api/internal/content"
	"inkwell/api/internal/store"
)

type grantKey struct {
	docID  string
	userID string
}

type versionKey struct {
	docID   string
	version int
}

type session struct {
	userID    string
	expiresAt time.Time
}

// Store satisfies the metadata, session and content backend contracts.
// Each map is safe for concurrent use; operations across maps are not atomic.
type Store struct {
	users     *xsync.MapOf[string, store.User]
	emails    *xsync.MapOf[string, string]
	documents *xsync.MapOf[string, store.Document]
	grants    *xsync.MapOf[grantKey, store.Grant]
	versions  *xsync.MapOf[versionKey, store.Version]
	sessions  *xsync.MapOf[string, session]
	objects   *xsync.MapOf[string, []byte]
	now       func() time.Time
}

func New() *Store {
	return &Store{
		users:     xsync.NewMapOf[string, store.User](),
		emails:    xsync.NewMapOf[string, string](),
		documents: xsync.NewMapOf[string, store.Document](),
		grants:    xsync.NewMapOf[grantKey, store.Grant](),
		versions:  xsync.NewMapOf[versionKey, store.Version](),
		sessions:  xsync.NewMapOf[string, session](),
		objects:   xsync.NewMapOf[string, []byte](),
		now:       time.Now,
	}
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) CreateUser(_ context.Context, user store.User) error {
	if _, taken := s.emails.LoadOrStore(user.Email, user.ID); taken {
		return store.ErrDuplicateEmail
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	s.users.Store(user.ID, user)
	return nil
}

func (s *Store) UpdateUserPassword(_ context.Context, userID, passwordHash string, updatedAt time.Time) error {
	found := false
	s.users.Compute(userID, func(user store.User, loaded bool) (store.User, bool) {
		if !loaded {
			return user, true
		}
		found = true
		user.PasswordHash = passwordHash
		user.UpdatedAt = updatedAt
		return user, false
	})
	if !found {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetUserByID(_ context.Context, userID string) (store.User, error) {
	user, ok := s.users.Load(userID)
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	userID, ok := s.emails.Load(email)
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return s.GetUserByID(ctx, userID)
}

func (s *Store) GetUsersByIDs(_ context.Context, userIDs []string) (map[string]store.User, error) {
	users := make(map[string]store.User, len(userIDs))
	for _, id := range userIDs {
		if user, ok := s.users.Load(id); ok {
			users[id] = user
		}
	}
	return users, nil
}

func (s *Store) PutDocument(_ context.Context, doc store.Document) error {
	s.documents.Store(doc.ID, doc)
	return nil
}

func (s *Store) GetDocument(_ context.Context, docID string) (store.Document, error) {
	doc, ok := s.documents.Load(docID)
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return doc, nil
}

func (s *Store) UpdateDocument(_ context.Context, docID string, title *string, updatedAt time.Time) error {
	found := false
	s.documents.Compute(docID, func(doc store.Document, loaded bool) (store.Document, bool) {
		if !loaded {
			return doc, true
		}
		found = true
		if title != nil {
			doc.Title = *title
		}
		doc.UpdatedAt = updatedAt
		return doc, false
	})
	if !found {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteDocument(_ context.Context, docID string) error {
	s.documents.Delete(docID)
	return nil
}

func (s *Store) ListDocumentsByOwner(_ context.Context, ownerID string) ([]store.Document, error) {
	items := make([]store.Document, 0)
	s.documents.Range(func(_ string, doc store.Document) bool {
		if doc.OwnerID == ownerID {
			items = append(items, doc)
		}
		return true
	})
	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *Store) GetGrant(_ context.Context, docID, userID string) (store.Grant, error) {
	grant, ok := s.grants.Load(grantKey{docID: docID, userID: userID})
	if !ok {
		return store.Grant{}, store.ErrNotFound
	}
	return grant, nil
}

// PutGrant replaces the permission of an existing grant and keeps its creation time.
func (s *Store) PutGrant(_ context.Context, grant store.Grant) error {
	s.grants.Compute(grantKey{docID: grant.DocumentID, userID: grant.UserID}, func(old store.Grant, loaded bool) (store.Grant, bool) {
		if loaded {
			old.Permission = grant.Permission
			return old, false
		}
		return grant, false
	})
	return nil
}

func (s *Store) UpdateGrantPermission(_ context.Context, docID, userID, permission string) (bool, error) {
	found := false
	s.grants.Compute(grantKey{docID: docID, userID: userID}, func(grant store.Grant, loaded bool) (store.Grant, bool) {
		if !loaded {
			return grant, true
		}
		found = true
		grant.Permission = permission
		return grant, false
	})
	return found, nil
}

func (s *Store) DeleteGrant(_ context.Context, docID, userID string) error {
	s.grants.Delete(grantKey{docID: docID, userID: userID})
	return nil
}

func (s *Store) collectGrants(match func(grantKey) bool) []store.Grant {
	items := make([]store.Grant, 0)
	s.grants.Range(func(key grantKey, grant store.Grant) bool {
		if match(key) {
			items = append(items, grant)
		}
		return true
	})
	return items
}

func (s *Store) ListGrantsByDocument(_ context.Context, docID string) ([]store.Grant, error) {
	items := s.collectGrants(func(key grantKey) bool { return key.docID == docID })
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].UserID < items[j].UserID
	})
	return items, nil
}

func (s *Store) ListGrantsByUser(_ context.Context, userID string) ([]store.Grant, error) {
	items := s.collectGrants(func(key grantKey) bool { return key.userID == userID })
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].DocumentID < items[j].DocumentID
	})
	return items, nil
}

func (s *Store) PutVersion(_ context.Context, version store.Version) error {
	if _, exists := s.versions.LoadOrStore(versionKey{docID: version.DocumentID, version: version.Version}, version); exists {
		return store.ErrDuplicateVersion
	}
	return nil
}

func (s *Store) GetVersion(_ context.Context, docID string, version int) (store.Version, error) {
	item, ok := s.versions.Load(versionKey{docID: docID, version: version})
	if !ok {
		return store.Version{}, store.ErrNotFound
	}
	return item, nil
}

func (s *Store) ListVersions(_ context.Context, docID string) ([]store.Version, error) {
	items := make([]store.Version, 0)
	s.versions.Range(func(key versionKey, item store.Version) bool {
		if key.docID == docID {
			items = append(items, item)
		}
		return true
	})
	sort.Slice(items, func(i, j int) bool { return items[i].Version < items[j].Version })
	return items, nil
}

func (s *Store) DeleteVersion(_ context.Context, docID string, version int) error {
	s.versions.Delete(versionKey{docID: docID, version: version})
	return nil
}

func (s *Store) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	s.sessions.Store(tokenHash, session{userID: userID, expiresAt: expiresAt})
	return nil
}

func (s *Store) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	sess, ok := s.sessions.Load(tokenHash)
	if !ok || !s.now().Before(sess.expiresAt) {
		return "", store.ErrNotFound
	}
	return sess.userID, nil
}

func (s *Store) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	s.sessions.Delete(tokenHash)
	return nil
}

// Put, Get and Remove make Store a content.Backend.
func (s *Store) Put(_ context.Context, key string, body []byte) error {
	s.objects.Store(key, append([]byte(nil), body...))
	return nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	body, ok := s.objects.Load(key)
	if !ok {
		return nil, content.ErrObjectNotFound
	}
	return append([]byte(nil), body...), nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	if _, ok := s.objects.LoadAndDelete(key); !ok {
		return content.ErrObjectNotFound
	}
	return nil
}

// ObjectKeys lists stored object keys under prefix in sorted order.
func (s *Store) ObjectKeys(prefix string) []string {
	keys := make([]string, 0)
	s.objects.Range(func(key string, _ []byte) bool {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	sort.Strings(keys)
	return keys
}
