// Package auth models operator capabilities and the signed session
// tokens scanner devices and admin tools present to the API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Capability is one thing an operator may do.
type Capability string

const (
	CapManageEvents Capability = "events:manage"
	CapManageUsers  Capability = "users:manage"
	CapScan         Capability = "scan"
)

var knownCapabilities = []Capability{CapManageEvents, CapManageUsers, CapScan}

// Capabilities is a set of capabilities.
type Capabilities map[Capability]struct{}

// NewCapabilities builds a set from the given capabilities.
func NewCapabilities(caps ...Capability) Capabilities {
	set := make(Capabilities, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether c is in the set.
func (s Capabilities) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// List returns the set in a stable order.
func (s Capabilities) List() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Roles maps the legacy role names onto capability sets.
var Roles = map[string]Capabilities{
	"admin":         NewCapabilities(CapManageEvents),
	"scanner":       NewCapabilities(CapScan),
	"admin_scanner": NewCapabilities(CapManageEvents, CapManageUsers, CapScan),
}

// ParseCapabilities accepts a comma separated list of role names and
// capability names, e.g. "scanner" or "events:manage,scan".
func ParseCapabilities(spec string) (Capabilities, error) {
	set := Capabilities{}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if role, ok := Roles[part]; ok {
			for c := range role {
				set[c] = struct{}{}
			}
			continue
		}
		c := Capability(part)
		if !slices.Contains(knownCapabilities, c) {
			return nil, fmt.Errorf("unknown role or capability %q", part)
		}
		set[c] = struct{}{}
	}
	if len(set) == 0 {
		return nil, errors.New("no capabilities given")
	}
	return set, nil
}

// Authorize reports whether caps grants required.
func Authorize(caps Capabilities, required Capability) bool {
	return caps.Has(required)
}

// Session is the authenticated operator behind a request.
type Session struct {
	Subject      string
	Name         string
	Capabilities Capabilities
	ExpiresAt    time.Time
}

// Can reports whether the session holds the capability.
func (s *Session) Can(c Capability) bool {
	return s != nil && Authorize(s.Capabilities, c)
}

// NewOperatorSession builds the session for operator subject holding the
// roles or capabilities listed in roles (see ParseCapabilities).
func NewOperatorSession(subject, name, roles string) (Session, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Session{}, errors.New("operator subject is required")
	}
	caps, err := ParseCapabilities(roles)
	if err != nil {
		return Session{}, err
	}
	return Session{Subject: subject, Name: strings.TrimSpace(name), Capabilities: caps}, nil
}

// Grants reports whether s holds every capability in caps.
func (s *Session) Grants(caps Capabilities) bool {
	for c := range caps {
		if !s.Can(c) {
			return false
		}
	}
	return true
}

type ctxKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored in ctx, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
