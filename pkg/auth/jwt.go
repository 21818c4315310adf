// pkg/auth/jwt.go
// Lightweight HMAC‑SHA256 JWT signer / verifier used by the router for the
// shared-secret JWT authentication path (see internal/auth).  The
// implementation deliberately avoids advanced JWT conventions (kid, JWKs) to
// keep the dependency surface minimal.
//
// External dependency: github.com/golang-jwt/jwt/v5 (MIT).
package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Payload is the decoded token identity carried by a connection handshake or
// an HTTP Authorization header.  Fields mirror the wire claims: sub, email,
// roles, scopes, an optional requested workspace/client_id, and standard
// exp/iat.
type Payload struct {
	UserID    string   `json:"sub"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
	Workspace string   `json:"workspace,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	IssuedAt  int64    `json:"iat"`
	ExpiresAt int64    `json:"exp"`
}

// HasRole reports whether p carries the given role.
func (p *Payload) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Signer produces short‑lived tokens for router clients.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  func() time.Time // injection point for tests
}

// NewSigner returns a Signer with given secret, issuer claim and default TTL
// (used when Payload.ExpiresAt is zero).
func NewSigner(secret []byte, issuer string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Signer{secret: secret, issuer: issuer, ttl: ttl, clock: time.Now}
}

// Claims converts p into jwt.MapClaims, filling iat/exp from the clock and
// configured TTL when the payload leaves them zero.
func (s *Signer) Claims(p *Payload) jwt.MapClaims {
	now := s.clock()
	if p.IssuedAt == 0 {
		p.IssuedAt = now.Unix()
	}
	if p.ExpiresAt == 0 {
		p.ExpiresAt = now.Add(s.ttl).Unix()
	}
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": p.UserID,
		"iat": p.IssuedAt,
		"exp": p.ExpiresAt,
	}
	if p.Email != "" {
		claims["email"] = p.Email
	}
	if len(p.Roles) > 0 {
		claims["roles"] = toAnySlice(p.Roles)
	}
	if len(p.Scopes) > 0 {
		claims["scopes"] = toAnySlice(p.Scopes)
	}
	if p.Workspace != "" {
		claims["workspace"] = p.Workspace
	}
	if p.ClientID != "" {
		claims["client_id"] = p.ClientID
	}
	return claims
}

// Sign produces a JWT string for p.
func (s *Signer) Sign(p *Payload) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, s.Claims(p))
	return token.SignedString(s.secret)
}

// Verifier validates HMAC‑signed tokens.
//
// Namespace, when non-empty, is consulted as a claim-key prefix so that
// tokens minted by an external issuer (e.g. an SSO provider that nests
// custom claims under "https://issuer/roles" rather than a bare "roles") are
// still readable. The bare claim always takes precedence when present.
type Verifier struct {
	secret    []byte
	issuer    string
	namespace string
	clock     func() time.Time
}

// NewVerifier constructs a verifier with expected issuer.
func NewVerifier(secret []byte, issuer string) *Verifier {
	return &Verifier{secret: secret, issuer: issuer, clock: time.Now}
}

// WithNamespace sets the namespace prefix used for claim fallback lookups and
// returns v for chaining.
func (v *Verifier) WithNamespace(ns string) *Verifier {
	v.namespace = ns
	return v
}

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrIssuerMismatch = errors.New("issuer mismatch")
)

// ParseAndVerify parses tokenStr, validates signature, expiry and issuer, and
// returns the decoded Payload.
func (v *Verifier) ParseAndVerify(tokenStr string) (*Payload, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if v.issuer != "" && claims["iss"] != v.issuer {
		return nil, ErrIssuerMismatch
	}
	return v.decode(claims), nil
}

func (v *Verifier) decode(claims jwt.MapClaims) *Payload {
	p := &Payload{
		UserID:    stringClaim(claims, v.namespace, "sub"),
		Email:     stringClaim(claims, v.namespace, "email"),
		Roles:     stringSliceClaim(claims, v.namespace, "roles"),
		Scopes:    stringSliceClaim(claims, v.namespace, "scopes"),
		Workspace: stringClaim(claims, v.namespace, "workspace"),
		ClientID:  stringClaim(claims, v.namespace, "client_id"),
	}
	if iat, ok := claims["iat"].(float64); ok {
		p.IssuedAt = int64(iat)
	}
	if exp, ok := claims["exp"].(float64); ok {
		p.ExpiresAt = int64(exp)
	}
	return p
}

// stringClaim reads key, falling back to namespace+key when key is absent and
// namespace is set. "sub" never uses the namespaced form since it is a
// registered claim.
func stringClaim(claims jwt.MapClaims, namespace, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	if namespace == "" || key == "sub" {
		return ""
	}
	if v, ok := claims[namespace+key].(string); ok {
		return v
	}
	return ""
}

func stringSliceClaim(claims jwt.MapClaims, namespace, key string) []string {
	if v := decodeStringSlice(claims[key]); v != nil {
		return v
	}
	if namespace == "" {
		return nil
	}
	return decodeStringSlice(claims[namespace+key])
}

func decodeStringSlice(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
