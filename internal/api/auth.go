package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/verdantlogic/greenhouse-core/internal/audit"
	"github.com/verdantlogic/greenhouse-core/internal/auth"
)

// minPasswordLength is the minimum accepted password length for registration.
const minPasswordLength = 8

// credentialsRequest is the request body for register and login.
type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// tokenResponse is the response body for successful register and login.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	UserID      string `json:"user_id"`
}

// handleRegister creates a new user account and returns an access token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !auth.IsValidLogin(req.Login) {
		writeBadRequest(w, "login must be 1-64 characters of letters, digits, dots, hyphens or underscores")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("hashing password", "error", err)
		writeInternalError(w, "failed to create account")
		return
	}

	user := &auth.User{Login: req.Login, PasswordHash: hash}
	if err := s.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrLoginExists) {
			writeError(w, http.StatusBadRequest, ErrCodeConflict, "login already taken")
			return
		}
		if errors.Is(err, auth.ErrInvalidLogin) {
			writeBadRequest(w, "invalid login format")
			return
		}
		s.logger.Error("creating user", "error", err)
		writeInternalError(w, "failed to create account")
		return
	}

	s.recordActivity(r.Context(), user.ID, audit.ActionRegister, "user", user.ID, nil)

	s.writeToken(w, http.StatusCreated, user)
}

// handleLogin authenticates a user and returns an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.users.GetByLogin(r.Context(), req.Login)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			// Same response as a wrong password; logins are not enumerable.
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.logger.Error("looking up user", "error", err)
		writeInternalError(w, "failed to authenticate")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		s.logger.Error("verifying password", "error", err)
		writeInternalError(w, "failed to authenticate")
		return
	}
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	s.recordActivity(r.Context(), user.ID, audit.ActionLogin, "user", user.ID, nil)

	s.writeToken(w, http.StatusOK, user)
}

// writeToken signs an access token for the user and writes the response.
func (s *Server) writeToken(w http.ResponseWriter, status int, user *auth.User) {
	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = 60
	}

	token, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		s.logger.Error("generating token", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, status, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   ttl * 60, // seconds
		UserID:      user.ID,
	})
}

// handleCurrentUser returns the authenticated user's account.
func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetByID(r.Context(), userID(r))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("loading user", "error", err)
		writeInternalError(w, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// favoriteGreenhouseBody is the payload for the favourite greenhouse pointer.
// A null greenhouse_id clears the pointer.
type favoriteGreenhouseBody struct {
	GreenhouseID *string `json:"greenhouse_id"`
}

// handleGetFavoriteGreenhouse returns the user's favourite greenhouse with its
// member modules, or JSON null when no favourite is set.
func (s *Server) handleGetFavoriteGreenhouse(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetByID(r.Context(), userID(r))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("loading user", "error", err)
		writeInternalError(w, "failed to load user")
		return
	}

	if user.FavoriteGreenhouseID == nil {
		writeJSON(w, http.StatusOK, json.RawMessage("null"))
		return
	}

	gh, err := s.greenhouses.GetByID(r.Context(), *user.FavoriteGreenhouseID, user.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	members, err := s.modules.ListByGreenhouse(r.Context(), gh.ID)
	if err != nil {
		s.logger.Error("listing greenhouse modules", "error", err)
		writeInternalError(w, "failed to list greenhouse modules")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"greenhouse": gh, "modules": members})
}

// handleSetFavoriteGreenhouse updates the user's favourite greenhouse pointer.
// The greenhouse must belong to the caller; a null ID clears the pointer.
func (s *Server) handleSetFavoriteGreenhouse(w http.ResponseWriter, r *http.Request) {
	var req favoriteGreenhouseBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	uid := userID(r)

	if req.GreenhouseID != nil {
		if _, err := s.greenhouses.GetByID(r.Context(), *req.GreenhouseID, uid); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	if err := s.users.SetFavoriteGreenhouse(r.Context(), uid, req.GreenhouseID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("updating favourite greenhouse", "error", err)
		writeInternalError(w, "failed to update favourite greenhouse")
		return
	}

	s.recordActivity(r.Context(), uid, audit.ActionSetFavorite, "user", uid, nil)

	writeJSON(w, http.StatusOK, req)
}
