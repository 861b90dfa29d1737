package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "ingress"

// ErrUnauthenticated is returned for missing, expired or forged tokens.
var ErrUnauthenticated = errors.New("unauthenticated")

type claims struct {
	Name string   `json:"name,omitempty"`
	Caps []string `json:"caps"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies operator session tokens with HS256.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// NewIssuer returns an issuer using secret.
func NewIssuer(secret string) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	return &Issuer{secret: []byte(secret), now: time.Now}, nil
}

// Issue returns a signed token for s valid for ttl.
func (i *Issuer) Issue(s Session, ttl time.Duration) (string, error) {
	if s.Subject == "" {
		return "", errors.New("session subject is required")
	}
	now := i.now()
	caps := make([]string, 0, len(s.Capabilities))
	for _, c := range s.Capabilities.List() {
		caps = append(caps, string(c))
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name: s.Name,
		Caps: caps,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   s.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Parse verifies raw and returns the session it carries.
func (i *Issuer) Parse(raw string) (*Session, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	caps := Capabilities{}
	for _, name := range c.Caps {
		caps[Capability(name)] = struct{}{}
	}
	s := &Session{
		Subject:      c.Subject,
		Name:         c.Name,
		Capabilities: caps,
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s, nil
}
