// Package auth issues and verifies bearer credentials.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kailas-cloud/rulebook/internal/domain"
)

const (
	// DefaultTokenTTL applies when Issue is called with a non-positive ttl.
	DefaultTokenTTL = 30 * time.Minute
	// DefaultLoginTTL is the lifetime of tokens handed out by Login.
	DefaultLoginTTL = time.Hour

	bearerPrefix = "Bearer "
)

// Config holds the signing and login settings.
type Config struct {
	SecretKey string
	Algorithm string // HS256, HS384 or HS512
	TokenTTL  time.Duration
	LoginTTL  time.Duration
	Users     map[string]string // username -> password
}

// Service issues and verifies HMAC-signed JWTs.
type Service struct {
	secret   []byte
	method   jwt.SigningMethod
	tokenTTL time.Duration
	loginTTL time.Duration
	users    map[string]string
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New validates cfg and creates a Service.
func New(cfg Config, opts ...Option) (*Service, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("auth: secret key is required")
	}

	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("auth: unsupported algorithm %q", alg)
	}
	for user, password := range cfg.Users {
		if password == "" {
			return nil, fmt.Errorf("auth: empty password for user %q", user)
		}
	}

	s := &Service{
		secret:   []byte(cfg.SecretKey),
		method:   method,
		tokenTTL: cfg.TokenTTL,
		loginTTL: cfg.LoginTTL,
		users:    cfg.Users,
		now:      time.Now,
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = DefaultTokenTTL
	}
	if s.loginTTL <= 0 {
		s.loginTTL = DefaultLoginTTL
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Issue signs a token for subject. ttl <= 0 selects the configured default.
func (s *Service) Issue(subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("empty subject: %w", domain.ErrBadRequest)
	}
	if ttl <= 0 {
		ttl = s.tokenTTL
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify checks signature, algorithm and expiry and returns the subject.
func (s *Service) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// SubjectFromHeader verifies a raw Authorization header value.
// A missing or malformed header is a bad request; a bad token is unauthenticated.
func (s *Service) SubjectFromHeader(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("missing authorization header: %w", domain.ErrBadRequest)
	}
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		return "", fmt.Errorf("authorization header must start with %q: %w", bearerPrefix, domain.ErrBadRequest)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("empty bearer token: %w", domain.ErrBadRequest)
	}
	return s.Verify(token)
}

// Login checks username and password against the configured users and
// issues a token with the login TTL.
func (s *Service) Login(username, password string) (string, error) {
	want, ok := s.users[username]
	// compare even for unknown users so timing does not reveal them
	if !ok {
		want = "\x00" + password
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(password)) != 1 || !ok {
		return "", fmt.Errorf("invalid credentials: %w", domain.ErrBadRequest)
	}
	return s.Issue(username, s.loginTTL)
}
