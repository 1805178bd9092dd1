package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snipwise/snipwise/internal/auth"
	"github.com/snipwise/snipwise/internal/userstore"
)

type otpResponse struct {
	ChallengeID string    `json:"challenge_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	Code        string    `json:"code,omitempty"`
}

type sessionResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int64           `json:"expires_in"`
	ExpiresAt   time.Time       `json:"expires_at"`
	User        *userstore.User `json:"user"`
}

func (s *Server) handleOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	challengeID, code, expires, err := s.auth.CreateChallenge(req.Email)
	if errors.Is(err, auth.ErrInvalidEmail) {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		s.log.WithError(err).Error("create login challenge")
		s.respondError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	// The log is the delivery channel for login codes.
	s.log.WithFields(logrus.Fields{
		"email":        strings.ToLower(strings.TrimSpace(req.Email)),
		"challenge_id": challengeID,
		"code":         code,
		"expires_at":   expires.UTC().Format(time.RFC3339),
	}).Info("login code issued")

	resp := otpResponse{ChallengeID: challengeID, ExpiresAt: expires.UTC()}
	if s.echoCode {
		resp.Code = code
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChallengeID string `json:"challenge_id"`
		Code        string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	challengeID := strings.TrimSpace(req.ChallengeID)
	code := strings.TrimSpace(req.Code)
	if challengeID == "" || code == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("challenge id and code required"))
		return
	}
	email, err := s.auth.VerifyChallenge(challengeID, code)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, err)
		return
	}

	ctx := r.Context()
	user, created, err := s.users.FindOrCreate(ctx, email)
	if err != nil {
		s.log.WithError(err).Error("find or create user")
		s.respondError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}
	if !user.Active() {
		s.respondError(w, http.StatusForbidden, errUserInactive)
		return
	}
	now := time.Now().UTC()
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		s.log.WithError(err).Warn("record login")
	} else {
		user.LastLoginAt = &now
	}

	token, expires, err := s.auth.IssueToken(user.ID.String(), user.Email, s.tokenTTL)
	if err != nil {
		s.log.WithError(err).Error("issue session token")
		s.respondError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID.String(), "created": created}).Info("user signed in")
	s.respondJSON(w, http.StatusOK, sessionResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.tokenTTL / time.Second),
		ExpiresAt:   expires.UTC(),
		User:        user,
	})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, userFromContext(r.Context()))
}
