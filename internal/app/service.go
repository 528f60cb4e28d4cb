package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/authpw"
	"inkwell/api/internal/config"
	"inkwell/api/internal/metrics"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

// MetadataStore holds identities, documents, grants and version records.
type MetadataStore interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user store.User) error
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]store.User, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string, updatedAt time.Time) error

	PutDocument(ctx context.Context, doc store.Document) error
	GetDocument(ctx context.Context, docID string) (store.Document, error)
	UpdateDocument(ctx context.Context, docID string, title *string, updatedAt time.Time) error
	DeleteDocument(ctx context.Context, docID string) error
	ListDocumentsByOwner(ctx context.Context, ownerID string) ([]store.Document, error)

	GetGrant(ctx context.Context, docID, userID string) (store.Grant, error)
	PutGrant(ctx context.Context, grant store.Grant) error
	UpdateGrantPermission(ctx context.Context, docID, userID, permission string) (bool, error)
	DeleteGrant(ctx context.Context, docID, userID string) error
	ListGrantsByDocument(ctx context.Context, docID string) ([]store.Grant, error)
	ListGrantsByUser(ctx context.Context, userID string) ([]store.Grant, error)

	PutVersion(ctx context.Context, version store.Version) error
	GetVersion(ctx context.Context, docID string, version int) (store.Version, error)
	ListVersions(ctx context.Context, docID string) ([]store.Version, error)
	DeleteVersion(ctx context.Context, docID string, version int) error
}

// ContentStore holds document bodies and snapshot objects.
type ContentStore interface {
	Ping(ctx context.Context) error
	Write(ctx context.Context, docID, text string) error
	Read(ctx context.Context, docID string) (string, error)
	Delete(ctx context.Context, docID string) error
	WriteObject(ctx context.Context, key, text string) error
	ReadObject(ctx context.Context, key string) (string, error)
	RemoveObject(ctx context.Context, key string) error
}

// SessionStore keeps refresh-token sessions by token hash.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

const (
	storeMetadata = "metadata"
	storeContent  = "content"
	storeSessions = "sessions"
)

type Service struct {
	cfg       config.Config
	metadata  MetadataStore
	content   ContentStore
	sessions  SessionStore
	access    *rbac.Evaluator
	passwords *authpw.Service
	metrics   *metrics.Registry
	log       *zap.Logger
	now       func() time.Time
	newID     func() string
}

func New(cfg config.Config, metadata MetadataStore, contents ContentStore, sessions SessionStore, logger *zap.Logger, registry *metrics.Registry) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = metrics.New()
	}
	return &Service{
		cfg:       cfg,
		metadata:  metadata,
		content:   contents,
		sessions:  sessions,
		access:    rbac.NewEvaluator(grantLookup{metadata: metadata}),
		passwords: authpw.NewService(metadata),
		metrics:   registry,
		log:       logger,
		now:       time.Now,
		newID:     util.NewID,
	}
}

// grantLookup adapts the metadata store to the access evaluator.
type grantLookup struct {
	metadata MetadataStore
}

func (g grantLookup) GrantLevel(ctx context.Context, docID, userID string) (rbac.Level, bool, error) {
	grant, err := g.metadata.GetGrant(ctx, docID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	level, ok := rbac.ParseGrant(grant.Permission)
	if !ok {
		return "", false, nil
	}
	return level, true, nil
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// storeFailure records a failed store call and hides its details from callers.
func (s *Service) storeFailure(storeName, op, message string, err error) *DomainError {
	s.metrics.StoreFailure(storeName)
	s.log.Error("store call failed",
		zap.String("store", storeName),
		zap.String("op", op),
		zap.Error(err),
	)
	domainErr := domainError(KindStoreUnavailable, message, nil)
	domainErr.Err = err
	return domainErr
}

// observe counts an operation by outcome. Call it deferred with a pointer
// to the named error result.
func (s *Service) observe(op string, errp *error) {
	outcome := "ok"
	if err := *errp; err != nil {
		outcome = "error"
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			outcome = domainErr.Code
		}
	}
	s.metrics.DocumentOp(op, outcome)
}

func (s *Service) PingMetadata(ctx context.Context) error {
	return s.metadata.Ping(ctx)
}

func (s *Service) PingContent(ctx context.Context) error {
	return s.content.Ping(ctx)
}

func (s *Service) SignUp(ctx context.Context, name, email, password string) (UserProfile, error) {
	user, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{Name: name, Email: email, Password: password})
	switch {
	case errors.Is(err, authpw.ErrMissingFields):
		return UserProfile{}, invalidArgument("Name, email, and password are required.")
	case errors.Is(err, authpw.ErrWeakPassword), errors.Is(err, authpw.ErrPasswordTooLong):
		return UserProfile{}, invalidArgument(err.Error())
	case errors.Is(err, authpw.ErrEmailRegistered):
		return UserProfile{}, conflict("User with that email already exists.")
	case err != nil:
		return UserProfile{}, s.storeFailure(storeMetadata, "signup", "Failed to create user.", err)
	}
	profile := profileFromUser(user)
	profile.UpdatedAt = ""
	return profile, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, email, password)
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		return Session{}, unauthorized("Invalid credentials.")
	}
	if err != nil {
		return Session{}, s.storeFailure(storeMetadata, "login", "Failed to login.", err)
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, unauthorized("Refresh token invalid.")
	}
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, unauthorized("Refresh token invalid.")
	}
	if err != nil {
		return Session{}, s.storeFailure(storeSessions, "lookup refresh session", "Failed to refresh session.", err)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, s.storeFailure(storeSessions, "revoke refresh session", "Failed to refresh session.", err)
	}

	user, err := s.metadata.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, unauthorized("Refresh token invalid.")
	}
	if err != nil {
		return Session{}, s.storeFailure(storeMetadata, "get user", "Failed to refresh session.", err)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	token, expiresAt, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.Email, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken("rft")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, s.storeFailure(storeSessions, "save refresh session", "Failed to create session.", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		User:         profileFromUser(user),
	}, nil
}

// Logout revokes the refresh token. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
		return s.storeFailure(storeSessions, "revoke refresh session", "Failed to logout.", err)
	}
	return nil
}

// IdentityFromToken verifies an access token and returns the caller it names.
func (s *Service) IdentityFromToken(token string) (Identity, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

func (s *Service) Me(ctx context.Context, identity Identity) (UserProfile, error) {
	user, err := s.metadata.GetUserByID(ctx, identity.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return UserProfile{}, notFound("User not found.")
	}
	if err != nil {
		return UserProfile{}, s.storeFailure(storeMetadata, "get user", "Failed to fetch user info.", err)
	}
	return profileFromUser(user), nil
}

func (s *Service) ChangePassword(ctx context.Context, identity Identity, current, next string) error {
	err := s.passwords.ChangePassword(ctx, identity.UserID, current, next)
	switch {
	case errors.Is(err, authpw.ErrWeakPassword), errors.Is(err, authpw.ErrPasswordTooLong):
		return invalidArgument(err.Error())
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return unauthorized("Invalid credentials.")
	case errors.Is(err, store.ErrNotFound):
		return notFound("User not found.")
	case err != nil:
		return s.storeFailure(storeMetadata, "change password", "Failed to change password.", err)
	}
	return nil
}
