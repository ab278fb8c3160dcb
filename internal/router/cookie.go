package router

import (
	"net/http"
)

// sessionCookieName is the session-affinity cookie set alongside the
// mcp-session-id response header, for browser-based MCP clients that
// can't read response headers directly.
const sessionCookieName = "ploinky_mcp_session"

// defaultSessionCookieMaxAge is used whenever the caller does not
// specify an explicit Max-Age.
const defaultSessionCookieMaxAge = 3600

// buildCookie constructs the session cookie. configuredMaxAge of -1
// means "unset, use the built-in default lifetime"; any other value,
// including 0, is honored exactly. The source's bug used
// `maxAge || defaultMaxAge`, which silently promoted an explicit zero
// to the default lifetime — here zero means the cookie expires
// immediately (Open Question 3).
func buildCookie(value string, configuredMaxAge int) *http.Cookie {
	maxAge := configuredMaxAge
	switch maxAge {
	case -1:
		maxAge = defaultSessionCookieMaxAge
	case 0:
		// net/http omits the attribute for MaxAge 0 and writes
		// "Max-Age=0" for any negative MaxAge.
		maxAge = -1
	}
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// expireCookie is the Max-Age:0 clearing cookie sent on DELETE.
func expireCookie() *http.Cookie {
	return buildCookie("", 0)
}
