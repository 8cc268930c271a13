// Package jwt wraps golang-jwt with the two-secret token scheme used by the
// platform: short-lived access tokens and longer-lived refresh tokens, each
// signed with its own HS256 secret so compromise of one does not compromise
// the other. Both token kinds carry the account's tokenVersion; revocation
// is enforced above this package by comparing the claim against the
// account's current value.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind selects which secret and TTL a token is issued or parsed with.
type Kind uint8

const (
	// KindAccess is the per-request authorization token.
	KindAccess Kind = iota + 1
	// KindRefresh is used solely to mint new access tokens.
	KindRefresh
)

func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

var (
	// ErrExpired is returned for structurally valid tokens past their
	// expiry.
	ErrExpired = errors.New("token expired")
	// ErrMalformed covers parse failures, bad signatures, wrong issuer and
	// kind mismatches. Callers should not distinguish further.
	ErrMalformed = errors.New("token malformed")
)

// Claims is the signed claim set carried by both token kinds.
type Claims struct {
	AccountID    string `json:"uid"`
	TokenVersion int64  `json:"tv"`
	TokenKind    string `json:"tk"`
	jwt.RegisteredClaims
}

// Config holds the signing parameters for both token kinds.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// Manager issues and parses tokens. It is immutable after construction and
// safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a [Manager]. The two secrets must be
// non-empty and distinct, and the refresh TTL must exceed the access TTL.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("both token secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Manager{config: cfg}, nil
}

// Issue signs a token of the given kind for accountID at tokenVersion.
func (m *Manager) Issue(kind Kind, accountID string, tokenVersion int64) (string, error) {
	secret, ttl, err := m.keyFor(kind)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := Claims{
		AccountID:    accountID,
		TokenVersion: tokenVersion,
		TokenKind:    kind.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// IssuePair mints the access/refresh token pair for a full login.
func (m *Manager) IssuePair(accountID string, tokenVersion int64) (access, refresh string, err error) {
	access, err = m.Issue(KindAccess, accountID, tokenVersion)
	if err != nil {
		return "", "", err
	}
	refresh, err = m.Issue(KindRefresh, accountID, tokenVersion)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Parse verifies a token of the expected kind and returns its claims.
// Expiry is reported as [ErrExpired]; every other failure collapses to
// [ErrMalformed].
func (m *Manager) Parse(tokenStr string, kind Kind) (*Claims, error) {
	secret, _, err := m.keyFor(kind)
	if err != nil {
		return nil, err
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	// A refresh token presented as an access token (or the reverse) is
	// signed with the other secret and fails above, but the kind claim is
	// checked anyway as a second fence.
	if claims.TokenKind != kind.String() {
		return nil, ErrMalformed
	}
	if claims.AccountID == "" {
		return nil, ErrMalformed
	}

	return claims, nil
}

func (m *Manager) keyFor(kind Kind) ([]byte, time.Duration, error) {
	switch kind {
	case KindAccess:
		return m.config.AccessSecret, m.config.AccessTTL, nil
	case KindRefresh:
		return m.config.RefreshSecret, m.config.RefreshTTL, nil
	default:
		return nil, 0, errors.New("unknown token kind")
	}
}
