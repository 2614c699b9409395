// Package correlation provides CorrelationStore adapters: a stateless
// signed-cookie store for HTTP hosts and an in-memory store for tests and
// non-HTTP embeddings.
package correlation

import (
	"crypto/rsa"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/philiph/saml2-core/internal/core/domain"
	"github.com/philiph/saml2-core/internal/core/ports"
)

// DefaultCookieName is the cookie the pending round trip travels in.
const DefaultCookieName = "saml2_correlation"

// DefaultTTL bounds how long a round trip may stay outstanding.
const DefaultTTL = 10 * time.Minute

// CookieCodec signs and verifies the pending-correlation blob as a JWT.
// Tokens are signed with RSA (RS256) and are stateless: the browser carries
// the blob, the signature keeps it honest.
type CookieCodec struct {
	privateKey *rsa.PrivateKey
	ttl        time.Duration
}

// correlationClaims defines the JWT claims structure for the blob.
type correlationClaims struct {
	jwt.RegisteredClaims
	RequestID string `json:"request_id"`
	ReturnURL string `json:"return_url,omitempty"`
}

// NewCookieCodec creates a codec signing with the given key. A zero ttl
// falls back to DefaultTTL.
func NewCookieCodec(privateKey *rsa.PrivateKey, ttl time.Duration) *CookieCodec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CookieCodec{privateKey: privateKey, ttl: ttl}
}

// Encode signs the pending round trip into a compact token.
func (c *CookieCodec) Encode(pending *domain.PendingCorrelation) (string, error) {
	now := time.Now()
	claims := correlationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		RequestID: pending.RequestID,
		ReturnURL: pending.ReturnURL,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(c.privateKey)
}

// Decode validates a token and returns the pending round trip. Invalid or
// expired tokens yield ErrNoCorrelation: a correlation we cannot trust is
// the same as no correlation.
func (c *CookieCodec) Decode(token string) (*domain.PendingCorrelation, error) {
	parsed, err := jwt.ParseWithClaims(token, &correlationClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return &c.privateKey.PublicKey, nil
	})
	if err != nil {
		return nil, ports.ErrNoCorrelation
	}

	claims, ok := parsed.Claims.(*correlationClaims)
	if !ok || !parsed.Valid {
		return nil, ports.ErrNoCorrelation
	}

	return &domain.PendingCorrelation{
		RequestID: claims.RequestID,
		ReturnURL: claims.ReturnURL,
		IssuedAt:  claims.IssuedAt.Time,
	}, nil
}

// CookieStore binds a CookieCodec to one HTTP exchange, implementing the
// CorrelationStore port for the duration of a single request.
type CookieStore struct {
	codec  *CookieCodec
	name   string
	w      http.ResponseWriter
	r      *http.Request
	secure bool
}

// NewCookieStore creates a store scoped to the given exchange. secure
// controls the cookie's Secure flag; set it whenever the SP runs on HTTPS.
func NewCookieStore(codec *CookieCodec, name string, w http.ResponseWriter, r *http.Request, secure bool) *CookieStore {
	if name == "" {
		name = DefaultCookieName
	}
	return &CookieStore{codec: codec, name: name, w: w, r: r, secure: secure}
}

// Save persists the pending round trip in a signed cookie.
func (s *CookieStore) Save(pending *domain.PendingCorrelation) error {
	token, err := s.codec.Encode(pending)
	if err != nil {
		return err
	}
	http.SetCookie(s.w, &http.Cookie{
		Name:     s.name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.codec.ttl / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Load retrieves the pending round trip from the request cookie.
func (s *CookieStore) Load() (*domain.PendingCorrelation, error) {
	cookie, err := s.r.Cookie(s.name)
	if err != nil {
		return nil, ports.ErrNoCorrelation
	}
	return s.codec.Decode(cookie.Value)
}

// Remove expires the cookie.
func (s *CookieStore) Remove() error {
	http.SetCookie(s.w, &http.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Refresh re-issues the cookie with a fresh expiry.
func (s *CookieStore) Refresh() error {
	pending, err := s.Load()
	if err != nil {
		return err
	}
	return s.Save(pending)
}

var _ ports.CorrelationStore = (*CookieStore)(nil)
