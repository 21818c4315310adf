// internal/auth/authenticator.go
// Authenticator implements the three authentication paths a connecting peer
// can take: shared-secret JWT, opaque one-shot/reusable token, and anonymous
// fallback. It also implements generate_token, the workspace service member
// that mints new tokens of either kind depending on whether a JWT secret is
// configured.
package auth

import (
	"strings"
	"time"

	pkgauth "github.com/Voskan/hyphagw/pkg/auth"
	"github.com/Voskan/hyphagw/internal/errs"
	"github.com/Voskan/hyphagw/internal/util"
)

// TokenPayload is the decoded identity plus routing hints carried by a
// token. It is the same shape whether the token arrived as a JWT or as a
// locally-minted opaque string.
type TokenPayload = pkgauth.Payload

// Config parameterises an Authenticator.
type Config struct {
	// JWTSecret enables shared-secret JWT verification/minting when non-empty.
	JWTSecret []byte
	// Issuer is the expected/assigned "iss" claim.
	Issuer string
	// Namespace is an optional claim-key prefix for compatibility with an
	// external issuer that nests custom claims under its own URL.
	Namespace string
	// DefaultTokenTTL applies when a caller does not specify expires_in.
	DefaultTokenTTL time.Duration
}

// Authenticator resolves inbound tokens to identities and mints new tokens.
type Authenticator struct {
	verifier *pkgauth.Verifier
	signer   *pkgauth.Signer
	tokens   *TokenTable
	ttl      time.Duration
}

// New constructs an Authenticator from cfg.
func New(cfg Config) *Authenticator {
	a := &Authenticator{tokens: NewTokenTable(), ttl: cfg.DefaultTokenTTL}
	if a.ttl <= 0 {
		a.ttl = time.Hour
	}
	if len(cfg.JWTSecret) > 0 {
		a.verifier = pkgauth.NewVerifier(cfg.JWTSecret, cfg.Issuer).WithNamespace(cfg.Namespace)
		a.signer = pkgauth.NewSigner(cfg.JWTSecret, cfg.Issuer, a.ttl)
	}
	return a
}

// Authenticate resolves tokenStr into a TokenPayload, trying in order: JWT
// (if configured), opaque table, then anonymous fallback for an empty token.
func (a *Authenticator) Authenticate(tokenStr string) (*TokenPayload, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return a.anonymousPayload(), nil
	}

	looksLikeJWT := strings.Count(tokenStr, ".") == 2
	if a.verifier != nil && looksLikeJWT {
		payload, err := a.verifier.ParseAndVerify(tokenStr)
		if err == nil {
			return payload, nil
		}
		switch err {
		case pkgauth.ErrExpiredToken:
			return nil, errs.Wrap(errs.ExpiredToken, err, "token expired")
		default:
			return nil, errs.Wrap(errs.InvalidToken, err, "token verification failed")
		}
	}

	if payload, ok := a.tokens.Lookup(tokenStr); ok {
		return &payload, nil
	}
	return nil, errs.New(errs.InvalidToken, "unrecognized token")
}

// ResolveIdentity converts a TokenPayload into the Identity a Peer carries
// for its lifetime.
func ResolveIdentity(p *TokenPayload) *Identity {
	if p == nil {
		return &Identity{}
	}
	return &Identity{
		UserID:      p.UserID,
		Email:       p.Email,
		Roles:       append([]string(nil), p.Roles...),
		Scopes:      append([]string(nil), p.Scopes...),
		IsAnonymous: hasRole(p.Roles, "anonymous"),
		Workspace:   p.Workspace,
	}
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a *Authenticator) anonymousPayload() *TokenPayload {
	return &TokenPayload{
		UserID: "anon-" + util.MustNew(),
		Roles:  []string{"anonymous"},
		Scopes: []string{"read"},
	}
}

// GenerateConfig mirrors the recognized generate_token config keys:
// user_id, workspace, client_id, email, roles, scopes, expires_in.
type GenerateConfig struct {
	UserID    string
	Workspace string
	ClientID  string
	Email     string
	Roles     []string
	Scopes    []string
	ExpiresIn time.Duration
}

// GenerateToken mints a token on behalf of caller. Requesting a user or
// workspace other than the caller's own requires the admin role.
// callerWorkspace is the workspace the caller itself is connected in.
func (a *Authenticator) GenerateToken(cfg GenerateConfig, caller *Identity, callerWorkspace string) (string, error) {
	if cfg.UserID == "" {
		cfg.UserID = caller.UserID
	}
	if cfg.UserID != caller.UserID && !caller.IsAdmin() {
		return "", errs.New(errs.InsufficientScope, "minting a token for another user requires the admin role")
	}
	if cfg.Workspace != "" && cfg.Workspace != callerWorkspace && !caller.IsAdmin() {
		return "", errs.New(errs.InsufficientScope, "minting a token for another workspace requires the admin role")
	}

	ttl := cfg.ExpiresIn
	if ttl <= 0 {
		ttl = a.ttl
	}

	payload := TokenPayload{
		UserID:    cfg.UserID,
		Email:     cfg.Email,
		Roles:     cfg.Roles,
		Scopes:    cfg.Scopes,
		Workspace: cfg.Workspace,
		ClientID:  cfg.ClientID,
	}

	if a.signer != nil {
		payload.ExpiresAt = time.Now().Add(ttl).Unix()
		return a.signer.Sign(&payload)
	}

	token := util.MustNew()
	a.tokens.Put(token, payload, ttl)
	return token, nil
}
