package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/driveclone/apiserver/internal/httpx"
	"github.com/rs/zerolog"
)

// RefreshHeader carries the reissued token back to header-based clients.
const RefreshHeader = "Authorization"

// GateConfig controls how the session gate answers and refreshes.
type GateConfig struct {
	Cookie CookieConfig
	TTL    time.Duration

	// SlidingRefresh reissues a token with a fresh TTL on every
	// successfully verified request.
	SlidingRefresh bool
}

// Gate protects handlers behind a valid session token.
type Gate struct {
	codec  *Codec
	cfg    GateConfig
	logger zerolog.Logger
}

func NewGate(codec *Codec, cfg GateConfig, logger zerolog.Logger) *Gate {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &Gate{
		codec:  codec,
		cfg:    cfg,
		logger: logger.With().Str("component", "session_gate").Logger(),
	}
}

// Require is chi middleware. OPTIONS requests pass through untouched; every
// other request must carry a verifiable token or is answered with 401.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		credential := Extract(r, g.cfg.Cookie.name())
		if !credential.Present() {
			httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeMissingCredential, "No authentication token found")
			return
		}

		claims, err := g.codec.Verify(credential.Token)
		if err != nil {
			g.logger.Info().
				Str("reason", verifyReason(err)).
				Str("source", credential.Source.String()).
				Str("path", r.URL.Path).
				Msg("token rejected")
			// The reason stays in the log; every rejection looks the same to the client.
			httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeInvalidCredential, "Invalid or expired token")
			return
		}

		identity := claims.Identity()
		if g.cfg.SlidingRefresh {
			g.refresh(w, identity)
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func (g *Gate) refresh(w http.ResponseWriter, identity Identity) {
	token, _, err := g.codec.Issue(identity, g.cfg.TTL)
	if err != nil {
		g.logger.Error().Err(err).Str("user_id", identity.UserID).Msg("token refresh failed")
		return
	}
	g.cfg.Cookie.Set(w, token, g.cfg.TTL)
	w.Header().Set(RefreshHeader, bearerScheme+" "+token)
}

func verifyReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenSignature):
		return "signature"
	default:
		return "malformed"
	}
}
