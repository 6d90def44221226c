package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marmos91/webauthd/internal/logger"
)

// CookieName is the flash-notice cookie.
const CookieName = "webauthd_flash"

// flashTTL bounds how long a flash survives; it only needs to cross one
// redirect.
const flashTTL = 5 * time.Minute

// flashClaims carries the notices inside the signed cookie.
type flashClaims struct {
	jwt.RegisteredClaims

	Notices []string `json:"notices"`
}

// Flash signs and verifies the one-shot notice cookie. Notices set before a
// redirect are popped exactly once on the next page load.
type Flash struct {
	secret []byte
}

// NewFlash creates a Flash signing with secret.
func NewFlash(secret []byte) *Flash {
	return &Flash{secret: secret}
}

// Set stores notices in a signed cookie on w. Empty notices clear nothing
// and set nothing.
func (f *Flash) Set(w http.ResponseWriter, notices []string) error {
	if len(notices) == 0 {
		return nil
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, flashClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(flashTTL)),
		},
		Notices: notices,
	})
	signed, err := token.SignedString(f.secret)
	if err != nil {
		return fmt.Errorf("failed to sign flash cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(flashTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Pop returns the notices from r's flash cookie and clears the cookie.
// A missing, expired, or tampered cookie yields no notices.
func (f *Flash) Pop(w http.ResponseWriter, r *http.Request) []string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}

	// Clear regardless of validity; a flash is one-shot.
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	var claims flashClaims
	token, err := jwt.ParseWithClaims(cookie.Value, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return f.secret, nil
	})
	if err != nil || !token.Valid {
		logger.Debug("discarding invalid flash cookie", "error", err)
		return nil
	}

	return claims.Notices
}
