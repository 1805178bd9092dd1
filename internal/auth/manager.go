package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// RoleAuthenticated is carried by tokens issued after a verified login.
	RoleAuthenticated = "authenticated"
	// RoleAnon is carried by the public anon key.
	RoleAnon = "anon"

	issuer          = "snipwise"
	maxCodeAttempts = 5
)

var (
	// ErrInvalidToken is returned for any token that fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrChallengeNotFound is returned for unknown, expired or exhausted challenges.
	ErrChallengeNotFound = errors.New("challenge not found or expired")
	// ErrInvalidCode is returned when the code does not match.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrInvalidEmail is returned when a challenge is requested for a malformed address.
	ErrInvalidEmail = errors.New("valid email required")
)

// Claims are the JWT claims used for both session tokens and the anon key.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

// IsAnon reports whether the token is the public anon key.
func (c *Claims) IsAnon() bool { return c.Role == RoleAnon }

// UserID returns the subject of an authenticated token.
func (c *Claims) UserID() string {
	if c.Role != RoleAuthenticated {
		return ""
	}
	return c.Subject
}

// Manager handles email challenges and token issuance.
type Manager struct {
	secret     []byte
	mu         sync.Mutex
	challenges map[string]*challenge
	ttl        time.Duration
	now        func() time.Time
}

type challenge struct {
	email    string
	code     string
	expires  time.Time
	attempts int
}

// NewManager creates a Manager with the provided secret. challengeTTL <= 0 means 10 minutes.
func NewManager(secret string, challengeTTL time.Duration) *Manager {
	if secret == "" {
		panic("auth manager requires non-empty secret")
	}
	if challengeTTL <= 0 {
		challengeTTL = 10 * time.Minute
	}
	return &Manager{
		secret:     []byte(secret),
		challenges: make(map[string]*challenge),
		ttl:        challengeTTL,
		now:        time.Now,
	}
}

// NormalizeEmail lowercases and validates an address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// CreateChallenge registers a one-time code for the email.
func (m *Manager) CreateChallenge(email string) (challengeID, code string, expires time.Time, err error) {
	email, err = NormalizeEmail(email)
	if err != nil {
		return "", "", time.Time{}, err
	}
	id, err := randomID()
	if err != nil {
		return "", "", time.Time{}, err
	}
	code, err = randomCode()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := m.now()
	expires = now.Add(m.ttl)

	m.mu.Lock()
	for k, c := range m.challenges {
		if now.After(c.expires) {
			delete(m.challenges, k)
		}
	}
	m.challenges[id] = &challenge{email: email, code: code, expires: expires}
	m.mu.Unlock()
	return id, code, expires, nil
}

// VerifyChallenge validates the code and returns the associated email. A
// challenge is consumed on success and dropped after too many wrong codes.
func (m *Manager) VerifyChallenge(challengeID, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.challenges[challengeID]
	if ok && m.now().After(c.expires) {
		delete(m.challenges, challengeID)
		ok = false
	}
	if !ok {
		return "", ErrChallengeNotFound
	}
	if subtle.ConstantTimeCompare([]byte(c.code), []byte(strings.TrimSpace(code))) != 1 {
		c.attempts++
		if c.attempts >= maxCodeAttempts {
			delete(m.challenges, challengeID)
		}
		return "", ErrInvalidCode
	}
	delete(m.challenges, challengeID)
	return c.email, nil
}

// IssueToken signs an authenticated session token for the user.
func (m *Manager) IssueToken(userID, email string, ttl time.Duration) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("user id required")
	}
	if ttl == 0 {
		ttl = time.Hour
	}
	now := m.now()
	expires := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email: email,
		Role:  RoleAuthenticated,
	}
	token, err := m.sign(claims)
	return token, expires, err
}

// AnonKey returns the non-expiring public key accepted by the function endpoints.
func (m *Manager) AnonKey() (string, error) {
	return m.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
		Role:             RoleAnon,
	})
}

func (m *Manager) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature, issuer and expiry and returns the claims.
func (m *Manager) ValidateToken(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || tok == nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	switch claims.Role {
	case RoleAnon:
	case RoleAuthenticated:
		if claims.Subject == "" {
			return nil, ErrInvalidToken
		}
	default:
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func randomID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func randomCode() (string, error) {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	value := int(b[0])<<16 | int(b[1])<<8 | int(b[2])
	return fmt.Sprintf("%06d", value%1000000), nil
}
