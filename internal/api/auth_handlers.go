// ABOUTME: Handlers for registration, login, current user and logout
// ABOUTME: Registration creates the client, its tenant store and the first account together

package api

import (
	"fmt"
	"net/http"

	"github.com/2389/tower-gateway/internal/auth"
	"github.com/2389/tower-gateway/internal/identity"
	"github.com/2389/tower-gateway/internal/store"
)

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleRegister handles POST /api/auth/register.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	client, account, err := a.identity.Register(r.Context(), identity.Registration{
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeAuthResponse(w, r, http.StatusCreated, "user and client created", account, client)
}

// handleLogin handles POST /api/auth/login.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	account, client, err := a.identity.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeAuthResponse(w, r, http.StatusOK, "login successful", account, client)
}

func (a *API) writeAuthResponse(w http.ResponseWriter, r *http.Request, status int, msg string, account *store.Account, client *store.Client) {
	token, err := a.tokens.Generate(account.ID, a.tokenTTL)
	if err != nil {
		a.writeError(w, r, fmt.Errorf("issuing token: %w", err))
		return
	}
	writeJSON(w, status, authResponse{
		Message:     msg,
		AccessToken: token,
		User:        newUserView(account),
		Client:      newClientView(client),
	})
}

// handleMe handles GET /api/auth/me and GET /api/profile.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	scope := auth.MustFromContext(r.Context()).Scope
	writeJSON(w, http.StatusOK, meResponse{
		User:   newUserView(scope.Account),
		Client: newClientView(scope.Client),
	})
}

// handleLogout handles POST /api/auth/logout. Tokens are stateless, so the
// caller discards its token.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, message("logout successful"))
}
