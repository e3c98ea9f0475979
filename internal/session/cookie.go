package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CookieName is the session cookie issued to browsers.
const CookieName = "smartmeds_session"

// ErrBadCookie is returned for missing, malformed, or tampered cookies.
var ErrBadCookie = errors.New("session: invalid cookie")

// CookieManager issues and verifies HMAC-signed session-ID cookies. The
// signing secret is injected configuration; with the default random
// per-process secret, cookies from before a restart stop verifying.
type CookieManager struct {
	secret []byte
	maxAge time.Duration
	secure bool
}

// NewCookieManager creates a manager with the given secret. An empty
// secret gets a random per-process replacement.
func NewCookieManager(secret []byte, maxAge time.Duration, secure bool) *CookieManager {
	if len(secret) == 0 {
		secret = RandomSecret()
	}
	return &CookieManager{secret: secret, maxAge: maxAge, secure: secure}
}

// RandomSecret generates a 32-byte signing secret.
func RandomSecret() []byte {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("session: cannot read random secret: " + err.Error())
	}
	return secret
}

// Issue creates a fresh session ID and sets the signed cookie.
func (m *CookieManager) Issue(w http.ResponseWriter) string {
	sessionID := uuid.New().String()
	m.setCookie(w, sessionID)
	return sessionID
}

// SessionID verifies the request's cookie and returns the session ID.
func (m *CookieManager) SessionID(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", ErrBadCookie
	}

	sessionID, sig, ok := strings.Cut(cookie.Value, ".")
	if !ok || sessionID == "" {
		return "", ErrBadCookie
	}

	want := m.sign(sessionID)
	got, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(got, want) {
		return "", ErrBadCookie
	}
	return sessionID, nil
}

// Clear expires the session cookie.
func (m *CookieManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *CookieManager) setCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sessionID + "." + hex.EncodeToString(m.sign(sessionID)),
		Path:     "/",
		MaxAge:   int(m.maxAge / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *CookieManager) sign(sessionID string) []byte {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(sessionID))
	return mac.Sum(nil)
}
