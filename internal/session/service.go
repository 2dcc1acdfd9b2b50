// Package session owns the account session lifecycle: registration, login,
// logout, refresh-token rotation, and the authenticated profile operations.
// Every failure leaving this package is classified (see errors.go).
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"vidtube/internal/auth"
	"vidtube/internal/db"
	"vidtube/internal/media"
	"vidtube/internal/models"
)

// textPolicy scrubs markup out of user-supplied display text before it is
// persisted or echoed back.
var textPolicy = bluemonday.StrictPolicy()

// UserStore is the persistence seam the session service depends on. The
// sqlite repository in internal/db implements it.
type UserStore interface {
	Create(ctx context.Context, params db.CreateUserParams) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error)
	SetRefreshToken(ctx context.Context, id, token string) error
	RotateRefreshToken(ctx context.Context, id, current, next string) error
	ClearRefreshToken(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordDigest string) error
	UpdateDetails(ctx context.Context, id, fullName, email string) error
	UpdateAvatarURL(ctx context.Context, id, url string) error
	UpdateCoverImageURL(ctx context.Context, id, url string) error
}

type Service struct {
	users   UserStore
	tokens  *auth.TokenService
	uploads media.Uploader
}

func NewService(users UserStore, tokens *auth.TokenService, uploads media.Uploader) *Service {
	return &Service{users: users, tokens: tokens, uploads: uploads}
}

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type RegisterInput struct {
	FullName   string
	Email      string
	Username   string
	Password   string
	Avatar     *media.Blob
	CoverImage *media.Blob
}

type LoginInput struct {
	Username string
	Email    string
	Password string
}

type LoginResult struct {
	User   *models.User
	Tokens TokenPair
}

// Register validates and normalizes the account fields, uploads profile
// media, hashes the password, and persists the account. The avatar upload is
// mandatory; a failed cover upload degrades to an empty URL. The returned
// user is sanitized.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	fullName := normalizeText(in.FullName)
	email := normalizeIdentifier(in.Email)
	username := normalizeIdentifier(in.Username)

	if fullName == "" || email == "" || username == "" || strings.TrimSpace(in.Password) == "" {
		return nil, errValidation("fullName, email, username and password are required")
	}

	_, err := s.users.GetByUsernameOrEmail(ctx, username, email)
	if err == nil {
		return nil, errConflict("username or email already in use")
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, errInternal(err)
	}

	if in.Avatar == nil {
		return nil, errValidation("avatar file is required")
	}

	avatarURL, err := s.uploads.Upload(ctx, *in.Avatar)
	if err != nil {
		return nil, errUpload("uploading avatar failed", err)
	}

	coverURL := ""
	if in.CoverImage != nil {
		coverURL, err = s.uploads.Upload(ctx, *in.CoverImage)
		if err != nil {
			// The cover image is optional; registration proceeds without it.
			slog.Warn("cover image upload failed", "username", username, "error", err)
			coverURL = ""
		}
	}

	// The password is hashed exactly as supplied; only identity fields are
	// normalized.
	digest, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, errInternal(err)
	}

	user, err := s.users.Create(ctx, db.CreateUserParams{
		Username:       username,
		Email:          email,
		FullName:       fullName,
		AvatarURL:      avatarURL,
		CoverImageURL:  coverURL,
		PasswordDigest: digest,
	})
	if err != nil {
		if db.IsUniqueConstraintError(err) {
			return nil, errConflict("username or email already in use")
		}
		return nil, errInternal(err)
	}

	return user.Sanitized(), nil
}

// Login verifies credentials and starts a session: a new access/refresh pair
// is issued and the refresh token overwrites whatever was stored before,
// revoking any earlier outstanding one.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	username := normalizeIdentifier(in.Username)
	email := normalizeIdentifier(in.Email)

	if username == "" && email == "" {
		return nil, errValidation("username or email is required")
	}
	if strings.TrimSpace(in.Password) == "" {
		return nil, errValidation("password is required")
	}

	user, err := s.users.GetByUsernameOrEmail(ctx, username, email)
	if errors.Is(err, db.ErrNotFound) {
		return nil, errNotFound("user does not exist")
	}
	if err != nil {
		return nil, errInternal(err)
	}

	if !auth.VerifyPassword(in.Password, user.PasswordDigest) {
		return nil, errAuth("invalid credentials")
	}

	pair, err := s.issueTokenPair(user)
	if err != nil {
		return nil, errInternal(err)
	}

	if err := s.users.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, errInternal(err)
	}

	return &LoginResult{User: user.Sanitized(), Tokens: pair}, nil
}

// Logout drops the stored refresh token. Safe to call repeatedly; a second
// logout is a no-op.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.users.ClearRefreshToken(ctx, userID); err != nil {
		return errInternal(err)
	}
	return nil
}

// Refresh exchanges a valid refresh token for a new pair. The presented
// token must match the stored one exactly; a mismatch means the token was
// superseded or the account logged out, and is rejected as a replay. The
// conditional store update closes the race between two callers presenting
// the same token.
func (s *Service) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return nil, errAuth("refresh token is required")
	}

	claims, err := s.tokens.Verify(presented, auth.TokenKindRefresh)
	if errors.Is(err, auth.ErrTokenExpired) {
		return nil, errAuth("refresh token has expired")
	}
	if err != nil {
		return nil, errAuth("invalid refresh token")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, errAuth("invalid refresh token")
	}
	if err != nil {
		return nil, errInternal(err)
	}

	if user.StoredRefreshToken() != presented {
		return nil, errAuth("refresh token is invalid or already used")
	}

	pair, err := s.issueTokenPair(user)
	if err != nil {
		return nil, errInternal(err)
	}

	err = s.users.RotateRefreshToken(ctx, user.ID, presented, pair.RefreshToken)
	if errors.Is(err, db.ErrNotFound) {
		return nil, errAuth("refresh token is invalid or already used")
	}
	if err != nil {
		return nil, errInternal(err)
	}

	return &pair, nil
}

// CurrentUser loads the sanitized account for an authenticated identity.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, errNotFound("user does not exist")
	}
	if err != nil {
		return nil, errInternal(err)
	}
	return user.Sanitized(), nil
}

// ChangePassword verifies the old password before storing a digest of the
// new one.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if strings.TrimSpace(oldPassword) == "" || strings.TrimSpace(newPassword) == "" {
		return errValidation("old and new passwords are required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return errNotFound("user does not exist")
	}
	if err != nil {
		return errInternal(err)
	}

	if !auth.VerifyPassword(oldPassword, user.PasswordDigest) {
		return errAuth("invalid old password")
	}

	digest, err := auth.HashPassword(newPassword)
	if err != nil {
		return errInternal(err)
	}

	if err := s.users.UpdatePassword(ctx, userID, digest); err != nil {
		return errInternal(err)
	}
	return nil
}

// UpdateDetails replaces fullName and email.
func (s *Service) UpdateDetails(ctx context.Context, userID, fullName, email string) (*models.User, error) {
	fullName = normalizeText(fullName)
	email = normalizeIdentifier(email)
	if fullName == "" || email == "" {
		return nil, errValidation("fullName and email are required")
	}

	if err := s.users.UpdateDetails(ctx, userID, fullName, email); err != nil {
		if db.IsUniqueConstraintError(err) {
			return nil, errConflict("email already in use")
		}
		if errors.Is(err, db.ErrNotFound) {
			return nil, errNotFound("user does not exist")
		}
		return nil, errInternal(err)
	}

	return s.CurrentUser(ctx, userID)
}

// UpdateAvatar uploads a replacement avatar and stores its URL. Unlike the
// optional cover image, a failed upload here is fatal.
func (s *Service) UpdateAvatar(ctx context.Context, userID string, blob *media.Blob) (*models.User, error) {
	return s.updateImage(ctx, userID, blob, "avatar", s.users.UpdateAvatarURL)
}

// UpdateCoverImage uploads a replacement cover image and stores its URL.
func (s *Service) UpdateCoverImage(ctx context.Context, userID string, blob *media.Blob) (*models.User, error) {
	return s.updateImage(ctx, userID, blob, "cover image", s.users.UpdateCoverImageURL)
}

func (s *Service) updateImage(
	ctx context.Context,
	userID string,
	blob *media.Blob,
	label string,
	store func(ctx context.Context, id, url string) error,
) (*models.User, error) {
	if blob == nil {
		return nil, errValidation(label + " file is required")
	}

	url, err := s.uploads.Upload(ctx, *blob)
	if err != nil {
		return nil, errUpload("uploading "+label+" failed", err)
	}

	err = store(ctx, userID, url)
	if errors.Is(err, db.ErrNotFound) {
		return nil, errNotFound("user does not exist")
	}
	if err != nil {
		return nil, errInternal(err)
	}

	return s.CurrentUser(ctx, userID)
}

func (s *Service) issueTokenPair(user *models.User) (TokenPair, error) {
	access, accessExp, err := s.tokens.IssueAccess(user)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(user)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// normalizeText scrubs markup out of display text and stores it lowercase and
// trimmed.
func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(textPolicy.Sanitize(s)))
}

// normalizeIdentifier lowercases and trims usernames and emails. No markup
// scrubbing: the sanitizer entity-escapes characters like & that are legal in
// an email address, and a mangled identifier could never be matched at login.
func normalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
