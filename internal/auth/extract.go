package auth

import (
	"net/http"
	"strings"
)

// Source tells where a credential was found on the request.
type Source int

const (
	SourceAbsent Source = iota
	SourceCookie
	SourceHeader
)

func (s Source) String() string {
	switch s {
	case SourceCookie:
		return "cookie"
	case SourceHeader:
		return "header"
	default:
		return "absent"
	}
}

// Credential is the result of Extract. Token is empty when Source is SourceAbsent.
type Credential struct {
	Source Source
	Token  string
}

func (c Credential) Present() bool {
	return c.Source != SourceAbsent
}

const bearerScheme = "Bearer"

// Extract looks for a session token on r. A non-empty cookie named
// cookieName always wins over an Authorization bearer header.
func Extract(r *http.Request, cookieName string) Credential {
	if cookie, err := r.Cookie(cookieName); err == nil {
		if token := strings.TrimSpace(cookie.Value); token != "" {
			return Credential{Source: SourceCookie, Token: token}
		}
	}

	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return Credential{Source: SourceHeader, Token: token}
	}

	return Credential{Source: SourceAbsent}
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], bearerScheme) {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
