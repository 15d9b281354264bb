package auth

import (
	"net/http"
	"time"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

// CookieWriter sets and clears the session cookies on outbound responses.
// Both cookies are HTTP-only so page scripts can never read them, and
// SameSite=Strict so they are not sent cross-site.
type CookieWriter struct {
	domain     string
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewCookieWriter(domain string, secure bool, accessTTL, refreshTTL time.Duration) *CookieWriter {
	return &CookieWriter{
		domain:     domain,
		secure:     secure,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// SetAuthCookies attaches both session cookies, each with a max-age matching
// its token's cryptographic expiry.
func (c *CookieWriter) SetAuthCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, c.cookie(accessTokenCookie, accessToken, int(c.accessTTL.Seconds())))
	http.SetCookie(w, c.cookie(refreshTokenCookie, refreshToken, int(c.refreshTTL.Seconds())))
}

// ClearAuthCookies expires both session cookies.
func (c *CookieWriter) ClearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(accessTokenCookie, "", -1))
	http.SetCookie(w, c.cookie(refreshTokenCookie, "", -1))
}

func (c *CookieWriter) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// GetAccessTokenFromCookie reads the access token cookie from the request.
func GetAccessTokenFromCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(accessTokenCookie)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// GetRefreshTokenFromCookie reads the refresh token cookie from the request.
func GetRefreshTokenFromCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(refreshTokenCookie)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
