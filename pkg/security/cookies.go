package security

import (
	"net/http"
	"strings"
	"time"

	"github.com/marcogenualdo/qf-auth/internal/config"
)

func CreateCookie(cfg config.ServerConfig, name, value string, maxAge time.Duration) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	switch strings.ToLower(cfg.CookieSameSite) {
	case "strict":
		sameSite = http.SameSiteStrictMode
	case "none":
		sameSite = http.SameSiteNoneMode
	}

	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   int(maxAge.Seconds()),
		Secure:   cfg.SecureCookies(),
		HttpOnly: true,
		SameSite: sameSite,
	}
}

// ClearCookie expires the named cookie immediately (serialized as Max-Age=0).
func ClearCookie(cfg config.ServerConfig, name string) *http.Cookie {
	cookie := CreateCookie(cfg, name, "", 0)
	cookie.MaxAge = -1
	return cookie
}

// CookieValue extracts a non-empty cookie value from a raw Cookie header.
func CookieValue(header, name string) (string, bool) {
	if header == "" {
		return "", false
	}

	req := http.Request{Header: http.Header{"Cookie": {header}}}
	cookie, err := req.Cookie(name)
	if err != nil {
		return "", false
	}

	value := strings.TrimSpace(cookie.Value)
	if value == "" {
		return "", false
	}
	return value, true
}
