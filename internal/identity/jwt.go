package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingToken is returned when a request carries no bearer token.
var ErrMissingToken = errors.New("missing bearer token")

// VerifierConfig configures JWT verification.
type VerifierConfig struct {
	Issuer        string
	Audience      string
	RequiredScope string
	// Methods defaults to RS256, RS384 and RS512.
	Methods []string
}

// Principal is a verified caller.
type Principal struct {
	Subject string
	Scopes  []string
	CanChat bool
}

// Verifier validates bearer tokens and derives the chat capability.
type Verifier struct {
	keyfunc jwt.Keyfunc
	cfg     VerifierConfig
	jwks    *keyfunc.JWKS
}

// NewVerifier creates a verifier resolving signing keys with kf.
func NewVerifier(kf jwt.Keyfunc, cfg VerifierConfig) *Verifier {
	if len(cfg.Methods) == 0 {
		cfg.Methods = []string{"RS256", "RS384", "RS512"}
	}
	return &Verifier{keyfunc: kf, cfg: cfg}
}

// NewJWKSVerifier creates a verifier backed by a refreshing JWKS endpoint.
func NewJWKSVerifier(ctx context.Context, jwksURL string, cfg VerifierConfig, logger *slog.Logger) (*Verifier, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Error("jwks refresh error", "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	v := NewVerifier(jwks.Keyfunc, cfg)
	v.jwks = jwks
	return v, nil
}

// Close stops background JWKS refreshing.
func (v *Verifier) Close() {
	if v != nil && v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// Verify parses and validates token and returns its principal.
func (v *Verifier) Verify(token string) (*Principal, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.cfg.Methods),
		jwt.WithExpirationRequired(),
	}
	if issuer := strings.TrimSpace(v.cfg.Issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience := strings.TrimSpace(v.cfg.Audience); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyfunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, errors.New("token has no subject")
	}

	scopes := scopesFromClaims(claims)
	return &Principal{
		Subject: subject,
		Scopes:  scopes,
		CanChat: v.cfg.RequiredScope == "" || slices.Contains(scopes, v.cfg.RequiredScope),
	}, nil
}

// scopesFromClaims reads the space-delimited "scope" claim or the "scp" list.
func scopesFromClaims(claims jwt.MapClaims) []string {
	var scopes []string
	if s, ok := claims["scope"].(string); ok {
		scopes = append(scopes, strings.Fields(s)...)
	}
	switch scp := claims["scp"].(type) {
	case string:
		scopes = append(scopes, strings.Fields(scp)...)
	case []any:
		for _, entry := range scp {
			if s, ok := entry.(string); ok {
				scopes = append(scopes, s)
			}
		}
	}
	return scopes
}
