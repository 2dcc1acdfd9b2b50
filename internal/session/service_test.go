package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vidtube/internal/auth"
	"vidtube/internal/db"
	"vidtube/internal/media"
)

type fakeUploader struct {
	mu        sync.Mutex
	failKinds map[media.Kind]bool
	uploads   []media.Kind
}

func (f *fakeUploader) Upload(_ context.Context, blob media.Blob) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failKinds[blob.Kind] {
		return "", errors.New("object store unavailable")
	}
	f.uploads = append(f.uploads, blob.Kind)
	return "https://cdn.example.com/" + string(blob.Kind) + "/test.png", nil
}

type testEnv struct {
	svc      *Service
	users    *db.UserRepository
	tokens   *auth.TokenService
	uploader *fakeUploader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvTTL(t, time.Hour, 24*time.Hour)
}

func newTestEnvTTL(t *testing.T, accessTTL, refreshTTL time.Duration) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	users := db.NewUserRepository(database)
	tokens := auth.NewTokenService(
		"access-secret-at-least-32-chars-long!!",
		"refresh-secret-at-least-32-chars-long!",
		accessTTL, refreshTTL,
	)
	uploader := &fakeUploader{failKinds: map[media.Kind]bool{}}

	return &testEnv{
		svc:      NewService(users, tokens, uploader),
		users:    users,
		tokens:   tokens,
		uploader: uploader,
	}
}

func registerInput() RegisterInput {
	return RegisterInput{
		FullName: "Ann Lee",
		Email:    "a@x.com",
		Username: "annlee",
		Password: "p1",
		Avatar: &media.Blob{
			Kind:         media.KindAvatar,
			OriginalName: "avatar.png",
			Data:         strings.NewReader("fake image bytes"),
		},
	}
}

func TestRegisterReturnsSanitizedProjection(t *testing.T) {
	env := newTestEnv(t)

	user, err := env.svc.Register(context.Background(), registerInput())
	require.NoError(t, err)

	require.Equal(t, "ann lee", user.FullName)
	require.Equal(t, "a@x.com", user.Email)
	require.Equal(t, "annlee", user.Username)
	require.Equal(t, "https://cdn.example.com/avatars/test.png", user.AvatarURL)
	require.Empty(t, user.CoverImageURL)
	require.Empty(t, user.PasswordDigest)
	require.Nil(t, user.RefreshToken)
	require.NotEmpty(t, user.ID)
}

func TestRegisterNormalizesIdentity(t *testing.T) {
	env := newTestEnv(t)

	in := registerInput()
	in.Username = "  AnnLee "
	in.Email = " A@X.COM "

	user, err := env.svc.Register(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "annlee", user.Username)
	require.Equal(t, "a@x.com", user.Email)
}

func TestRegisterPreservesPasswordVerbatim(t *testing.T) {
	env := newTestEnv(t)

	in := registerInput()
	in.Password = " p1 "

	_, err := env.svc.Register(context.Background(), in)
	require.NoError(t, err)

	// The password is hashed exactly as supplied, so login must succeed with
	// the padded form and fail with the trimmed one.
	_, err = env.svc.Login(context.Background(), LoginInput{Username: "annlee", Password: " p1 "})
	require.NoError(t, err)

	_, err = env.svc.Login(context.Background(), LoginInput{Username: "annlee", Password: "p1"})
	require.Equal(t, KindAuth, KindOf(err))
}

func TestRegisterKeepsEmailSpecialCharacters(t *testing.T) {
	env := newTestEnv(t)

	in := registerInput()
	in.Email = "Ann&Lee@x.com"

	user, err := env.svc.Register(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "ann&lee@x.com", user.Email)

	result, err := env.svc.Login(context.Background(), LoginInput{Email: "ann&lee@x.com", Password: "p1"})
	require.NoError(t, err)
	require.Equal(t, user.ID, result.User.ID)
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	env := newTestEnv(t)

	in := registerInput()
	in.FullName = "   "

	_, err := env.svc.Register(context.Background(), in)
	require.Equal(t, KindValidation, KindOf(err))
}

func TestRegisterRequiresAvatar(t *testing.T) {
	env := newTestEnv(t)

	in := registerInput()
	in.Avatar = nil

	_, err := env.svc.Register(context.Background(), in)
	require.Equal(t, KindValidation, KindOf(err))
}

func TestRegisterDuplicateIdentityConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, registerInput())
	require.NoError(t, err)

	// Same username, different email.
	in := registerInput()
	in.Email = "b@x.com"
	in.Avatar.Data = strings.NewReader("fake image bytes")
	_, err = env.svc.Register(ctx, in)
	require.Equal(t, KindConflict, KindOf(err))

	// Same email, different username.
	in = registerInput()
	in.Username = "otherann"
	in.Avatar.Data = strings.NewReader("fake image bytes")
	_, err = env.svc.Register(ctx, in)
	require.Equal(t, KindConflict, KindOf(err))
}

func TestRegisterAvatarUploadFailureIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.uploader.failKinds[media.KindAvatar] = true

	_, err := env.svc.Register(context.Background(), registerInput())
	require.Equal(t, KindUpload, KindOf(err))

	// Nothing should have been persisted.
	_, err = env.users.GetByUsernameOrEmail(context.Background(), "annlee", "")
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestRegisterCoverUploadFailureIsTolerated(t *testing.T) {
	env := newTestEnv(t)
	env.uploader.failKinds[media.KindCoverImage] = true

	in := registerInput()
	in.CoverImage = &media.Blob{
		Kind:         media.KindCoverImage,
		OriginalName: "cover.png",
		Data:         strings.NewReader("fake cover bytes"),
	}

	user, err := env.svc.Register(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, user.CoverImageURL)
}

func TestLoginRequiresIdentifier(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Login(context.Background(), LoginInput{Password: "p1"})
	require.Equal(t, KindValidation, KindOf(err))
}

func TestLoginUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Login(context.Background(), LoginInput{Username: "nobody", Password: "p1"})
	require.Equal(t, KindNotFound, KindOf(err))
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, registerInput())
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, LoginInput{Username: "annlee", Password: "wrong"})
	require.Equal(t, KindAuth, KindOf(err))
}

func TestLoginPersistsReturnedRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, registerInput())
	require.NoError(t, err)

	result, err := env.svc.Login(ctx, LoginInput{Email: "a@x.com", Password: "p1"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Tokens.AccessToken)
	require.NotEmpty(t, result.Tokens.RefreshToken)
	require.Empty(t, result.User.PasswordDigest)
	require.Nil(t, result.User.RefreshToken)

	stored, err := env.users.GetByID(ctx, result.User.ID)
	require.NoError(t, err)
	require.Equal(t, result.Tokens.RefreshToken, stored.StoredRefreshToken())
}

func TestLoginSupersedesEarlierRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, registerInput())
	require.NoError(t, err)

	first, err := env.svc.Login(ctx, LoginInput{Username: "annlee", Password: "p1"})
	require.NoError(t, err)

	// The second login rotates the stored token, revoking the first.
	_, err = env.svc.Login(ctx, LoginInput{Username: "annlee", Password: "p1"})
	require.NoError(t, err)

	_, err = env.svc.Refresh(ctx, first.Tokens.RefreshToken)
	require.Equal(t, KindAuth, KindOf(err))
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, registerInput())
	require.NoError(t, err)

	login, err := env.svc.Login(ctx, LoginInput{Username: "annlee", Password: "p1"})
	require.NoError(t, err)

	pair, err := env.svc.Refresh(ctx, login.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, login.Tokens.RefreshToken, pair.RefreshToken)

	stored, err := env.users.GetByID(ctx, login.User.ID)
	require.NoError(t, err)
	require.Equal(t, pair.RefreshToken, stored.StoredRefreshToken())

	// Replaying the superseded token must fail.
	_, err = env.svc.Refresh(ctx, login.Tokens.RefreshToken)
	require.Equal(t, KindAuth, KindOf(err))

	// The rotated token still works.
	_, err = env.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutInvalidatesRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, registerInput())
	require.NoError(t, err)

	login, err := env.svc.Login(ctx, LoginInput{Username: "annlee", Password: "p1"})
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(ctx, login.User.ID))
	// Idempotent.
	require.NoError(t, env.svc.Logout(ctx, login.User.ID))

	_, err = env.svc.Refresh(ctx, login.Tokens.RefreshToken)
	require.Equal(t, KindAuth, KindOf(err))
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	env := newTestEnvTTL(t, time.Hour, -time.Minute)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, registerInput())
	require.NoError(t, err)

	login, err := env.svc.Login(ctx, LoginInput{Username: "annlee", Password: "p1"})
	require.NoError(t, err)

	_, err = env.svc.Refresh(ctx, login.Tokens.RefreshToken)
	require.Equal(t, KindAuth, KindOf(err))
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Refresh(context.Background(), "")
	require.Equal(t, KindAuth, KindOf(err))

	_, err = env.svc.Refresh(context.Background(), "not.a.jwt")
	require.Equal(t, KindAuth, KindOf(err))
}

func TestConcurrentRefreshHasSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, registerInput())
	require.NoError(t, err)

	login, err := env.svc.Login(ctx, LoginInput{Username: "annlee", Password: "p1"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.svc.Refresh(ctx, login.Tokens.RefreshToken)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			require.Equal(t, KindAuth, KindOf(err))
		}
	}
	require.Equal(t, 1, successes, "exactly one concurrent refresh should rotate")
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.svc.Register(ctx, registerInput())
	require.NoError(t, err)

	err = env.svc.ChangePassword(ctx, user.ID, "wrong", "p2")
	require.Equal(t, KindAuth, KindOf(err))

	require.NoError(t, env.svc.ChangePassword(ctx, user.ID, "p1", "p2"))

	_, err = env.svc.Login(ctx, LoginInput{Username: "annlee", Password: "p1"})
	require.Equal(t, KindAuth, KindOf(err))

	_, err = env.svc.Login(ctx, LoginInput{Username: "annlee", Password: "p2"})
	require.NoError(t, err)
}

func TestUpdateDetails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.svc.Register(ctx, registerInput())
	require.NoError(t, err)

	updated, err := env.svc.UpdateDetails(ctx, user.ID, "Ann B. Lee", "ann@x.com")
	require.NoError(t, err)
	require.Equal(t, "ann b. lee", updated.FullName)
	require.Equal(t, "ann@x.com", updated.Email)

	_, err = env.svc.UpdateDetails(ctx, user.ID, "", "ann@x.com")
	require.Equal(t, KindValidation, KindOf(err))
}

func TestUpdateAvatarUploadFailureIsFatal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.svc.Register(ctx, registerInput())
	require.NoError(t, err)

	env.uploader.failKinds[media.KindAvatar] = true
	_, err = env.svc.UpdateAvatar(ctx, user.ID, &media.Blob{
		Kind:         media.KindAvatar,
		OriginalName: "new.png",
		Data:         strings.NewReader("fake image bytes"),
	})
	require.Equal(t, KindUpload, KindOf(err))

	// The old avatar survives a failed replacement.
	current, err := env.svc.CurrentUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, user.AvatarURL, current.AvatarURL)
}
