package api

import (
	"mime/multipart"
	"net/http"
	"time"

	"vidtube/internal/media"
	"vidtube/internal/models"
	"vidtube/internal/session"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"

	multipartMemoryLimit = 8 << 20
)

type AuthHandler struct {
	sessions      *session.Service
	secureCookies bool
}

func NewAuthHandler(sessions *session.Service, secureCookies bool) *AuthHandler {
	return &AuthHandler{sessions: sessions, secureCookies: secureCookies}
}

type LoginRequest struct {
	Username string `json:"username" validate:"omitempty,max=64"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type AuthResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// POST /api/v1/auth/register (multipart/form-data)
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		badRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	avatar, ok := formImage(r, "avatar")
	if !ok {
		badRequest(w, "avatar file is required")
		return
	}
	avatar.Blob.Kind = media.KindAvatar
	defer avatar.close()

	input := session.RegisterInput{
		FullName: r.FormValue("fullName"),
		Email:    r.FormValue("email"),
		Username: r.FormValue("username"),
		Password: r.FormValue("password"),
		Avatar:   &avatar.Blob,
	}

	if cover, ok := formImage(r, "coverImage"); ok {
		cover.Blob.Kind = media.KindCoverImage
		defer cover.close()
		input.CoverImage = &cover.Blob
	}

	user, err := h.sessions.Register(r.Context(), input)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	result, err := h.sessions.Login(r.Context(), session.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeSessionError(w, err)
		return
	}

	h.setAuthCookies(w, result.Tokens)
	writeJSON(w, http.StatusOK, AuthResponse{
		User:         result.User,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
	})
}

// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if user == nil {
		unauthorized(w, "User not found in context")
		return
	}

	if err := h.sessions.Logout(r.Context(), user.ID); err != nil {
		writeSessionError(w, err)
		return
	}

	h.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, struct{}{})
}

// POST /api/v1/auth/refresh
//
// The refresh token is read from the cookie when present, falling back to
// the request body for non-browser clients.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(refreshTokenCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		var req RefreshRequest
		if err := decodeAndValidate(r.Body, &req); err == nil {
			token = req.RefreshToken
		}
	}

	pair, err := h.sessions.Refresh(r.Context(), token)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	h.setAuthCookies(w, *pair)
	writeJSON(w, http.StatusOK, RefreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *AuthHandler) setAuthCookies(w http.ResponseWriter, pair session.TokenPair) {
	http.SetCookie(w, h.authCookie(accessTokenCookie, pair.AccessToken, pair.AccessExpiresAt))
	http.SetCookie(w, h.authCookie(refreshTokenCookie, pair.RefreshToken, pair.RefreshExpiresAt))
}

func (h *AuthHandler) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		c := h.authCookie(name, "", time.Time{})
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (h *AuthHandler) authCookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}

type formBlob struct {
	Blob media.Blob
	file multipart.File
}

func (b *formBlob) close() {
	_ = b.file.Close()
}

func formImage(r *http.Request, field string) (*formBlob, bool) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, false
	}
	return &formBlob{
		Blob: media.Blob{OriginalName: header.Filename, Data: file},
		file: file,
	}, true
}
