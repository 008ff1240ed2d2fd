package auth

import (
	"net/http"
	"strings"
)

// ExtractBearerToken extracts the token from the Authorization header.
func ExtractBearerToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	return ExtractBearerTokenFromHeader(r.Header.Get("Authorization"))
}

// ExtractBearerTokenFromHeader strips a case-insensitive "Bearer " prefix.
// Returns an empty string when the header carries another scheme.
func ExtractBearerTokenFromHeader(header string) string {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// ExtractToken looks at the Authorization header first and then at the query
// parameter (default "token"). Browsers cannot set headers on websocket upgrades,
// hence the query fallback.
func ExtractToken(r *http.Request, queryParam string) string {
	if token := ExtractBearerToken(r); token != "" {
		return token
	}
	if r == nil || r.URL == nil {
		return ""
	}
	if queryParam == "" {
		queryParam = "token"
	}
	return strings.TrimSpace(r.URL.Query().Get(queryParam))
}

// BearerHeader formats token as an Authorization header value.
func BearerHeader(token string) string {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ""
	}
	return "Bearer " + trimmed
}
