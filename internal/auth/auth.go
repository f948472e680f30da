// Package auth implements anonymous device identity and bearer token
// authentication.
//
// Memovox has no accounts: a client calls the anonymous registration
// endpoint once, receives a generated user id, device id, and a signed
// bearer token, and presents that token on every subsequent request. Tokens
// are HS256 JWTs carrying the user and device ids as claims.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Sentinel errors returned by the auth service.
var (
	// ErrMissingBearer indicates the Authorization header was absent.
	ErrMissingBearer = errors.New("missing bearer token")

	// ErrInvalidToken indicates the token failed signature or claim
	// validation.
	ErrInvalidToken = errors.New("invalid token")
)

// issuer is the "iss" claim on every Memovox token.
const issuer = "memovox"

// DefaultTokenTTL is how long issued tokens stay valid unless overridden.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Identity is the authenticated caller extracted from a bearer token.
type Identity struct {
	UserID   string
	DeviceID string
}

// Device is a registered anonymous device.
type Device struct {
	ID        string
	UserID    string
	Model     string
	CreatedAt time.Time
	LastSeen  time.Time
}

// DeviceStore persists registered devices.
type DeviceStore interface {
	// Create persists a new device row.
	Create(ctx context.Context, d *Device) error

	// Get returns the device with the given id, or [ErrDeviceNotFound].
	Get(ctx context.Context, id string) (*Device, error)

	// Touch updates the device's last-seen timestamp. Best effort; callers
	// may ignore the error.
	Touch(ctx context.Context, id string) error
}

// ErrDeviceNotFound is returned by [DeviceStore.Get] for unknown device ids.
var ErrDeviceNotFound = errors.New("device not found")

// claims is the JWT claim set for Memovox tokens. The user id rides in the
// standard subject claim; the device id is a private claim.
type claims struct {
	jwt.RegisteredClaims
	DeviceID string `json:"did"`
}

// Service issues and verifies bearer tokens and registers anonymous devices.
// Safe for concurrent use.
type Service struct {
	secret  []byte
	ttl     time.Duration
	devices DeviceStore
}

// NewService creates an auth [Service]. The secret signs all tokens; rotating
// it invalidates every outstanding token. A non-positive ttl falls back to
// [DefaultTokenTTL].
func NewService(secret []byte, ttl time.Duration, devices DeviceStore) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{secret: secret, ttl: ttl, devices: devices}, nil
}

// Registration is the result of registering an anonymous device.
type Registration struct {
	UserID    string
	DeviceID  string
	Token     string
	ExpiresAt time.Time
}

// RegisterAnonymous creates a fresh user and device identity, persists the
// device, and returns a signed token for it. deviceModel is a free-form
// client-reported label and may be empty.
func (s *Service) RegisterAnonymous(ctx context.Context, deviceModel string) (*Registration, error) {
	now := time.Now().UTC()
	d := &Device{
		ID:        uuid.NewString(),
		UserID:    uuid.NewString(),
		Model:     deviceModel,
		CreatedAt: now,
		LastSeen:  now,
	}
	if err := s.devices.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("auth: register device: %w", err)
	}

	token, expiresAt, err := s.IssueToken(Identity{UserID: d.UserID, DeviceID: d.ID})
	if err != nil {
		return nil, err
	}
	return &Registration{
		UserID:    d.UserID,
		DeviceID:  d.ID,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// IssueToken signs a new token for the given identity.
func (s *Service) IssueToken(id Identity) (token string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	expiresAt = now.Add(s.ttl)

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		DeviceID: id.DeviceID,
	})
	token, err = t.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return token, expiresAt, nil
}

// VerifyToken validates a bearer token and returns the identity it carries.
// Expired, malformed, or foreign-issuer tokens all map to [ErrInvalidToken].
func (s *Service) VerifyToken(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingBearer
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	c := &claims{}
	if _, err := parser.ParseWithClaims(token, c, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return Identity{}, ErrInvalidToken
	}
	if c.Subject == "" || c.DeviceID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: c.Subject, DeviceID: c.DeviceID}, nil
}
