package api

import (
	"context"
	"net/http"

	"vidtube/internal/media"
	"vidtube/internal/models"
	"vidtube/internal/session"
)

type UserHandler struct {
	sessions *session.Service
}

func NewUserHandler(sessions *session.Service) *UserHandler {
	return &UserHandler{sessions: sessions}
}

type UpdateDetailsRequest struct {
	FullName string `json:"fullName" validate:"required,max=128"`
	Email    string `json:"email" validate:"required,email,max=254"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required,max=128"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=128"`
}

// GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if user == nil {
		unauthorized(w, "User not found in context")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// PATCH /api/v1/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if user == nil {
		unauthorized(w, "User not found in context")
		return
	}

	var req UpdateDetailsRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	updated, err := h.sessions.UpdateDetails(r.Context(), user.ID, req.FullName, req.Email)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// POST /api/v1/users/change-password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if user == nil {
		unauthorized(w, "User not found in context")
		return
	}

	var req ChangePasswordRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.sessions.ChangePassword(r.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}

// PATCH /api/v1/users/me/avatar
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", media.KindAvatar, h.sessions.UpdateAvatar)
}

// PATCH /api/v1/users/me/cover
func (h *UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", media.KindCoverImage, h.sessions.UpdateCoverImage)
}

func (h *UserHandler) updateImage(
	w http.ResponseWriter,
	r *http.Request,
	field string,
	kind media.Kind,
	update func(ctx context.Context, userID string, blob *media.Blob) (*models.User, error),
) {
	user := CurrentUser(r)
	if user == nil {
		unauthorized(w, "User not found in context")
		return
	}

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		badRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	blob, ok := formImage(r, field)
	if !ok {
		badRequest(w, field+" file is required")
		return
	}
	blob.Blob.Kind = kind
	defer blob.close()

	updated, err := update(r.Context(), user.ID, &blob.Blob)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}
