// ABOUTME: Handlers for reading and updating the caller's own profile
// ABOUTME: Accounts can only ever change themselves; the id comes from the token

package api

import (
	"net/http"

	"github.com/2389/tower-gateway/internal/auth"
	"github.com/2389/tower-gateway/internal/identity"
)

type updateProfileRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type setPictureRequest struct {
	ProfilePicture string `json:"profile_picture"`
}

// handleUpdateProfile handles PUT /api/profile.
func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	account, err := a.identity.UpdateAccount(r.Context(), authCtx.PrincipalID, identity.AccountPatch{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "profile updated",
		"user":    newUserView(account),
	})
}

// handleChangePassword handles POST /api/profile/change-password.
func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.identity.ChangePassword(r.Context(), authCtx.PrincipalID, req.CurrentPassword, req.NewPassword); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message("password changed"))
}

// handleSetPicture handles PUT /api/profile/picture. The body carries a
// reference to an already stored image; an empty reference clears it.
func (a *API) handleSetPicture(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	var req setPictureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.identity.SetProfilePicture(r.Context(), authCtx.PrincipalID, req.ProfilePicture); err != nil {
		a.writeError(w, r, err)
		return
	}
	account := *authCtx.Scope.Account
	account.ProfilePicture = req.ProfilePicture
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":         "profile picture updated",
		"profile_picture": req.ProfilePicture,
		"user":            newUserView(&account),
	})
}
