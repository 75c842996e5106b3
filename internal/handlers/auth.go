package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/driveclone/apiserver/internal/auth"
	"github.com/driveclone/apiserver/internal/httpx"
	"github.com/driveclone/apiserver/internal/services"
)

// AuthHandler provides registration, login and session endpoints.
type AuthHandler struct {
	accounts    *services.AccountService
	cookie      auth.CookieConfig
	exposeToken bool
	respond     errorWriter
}

type AuthHandlerConfig struct {
	Cookie auth.CookieConfig
	// ExposeToken includes the session token in the login response body.
	ExposeToken bool
	// ExposeErrors echoes internal error text in 5xx responses.
	ExposeErrors bool
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(accounts *services.AccountService, cfg AuthHandlerConfig, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts:    accounts,
		cookie:      cfg.Cookie,
		exposeToken: cfg.ExposeToken,
		respond:     errorWriter{expose: cfg.ExposeErrors, logger: logger},
	}
}

// AuthRouter registers the /api/users routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, gate *auth.Gate) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)
	r.With(gate.Require).Get("/check-auth", handler.CheckAuth)
}

// Register creates a new account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if isFormRequest(r) {
		req = services.RegisterInput{
			Username: r.PostFormValue("username"),
			Email:    r.PostFormValue("email"),
			Password: r.PostFormValue("password"),
		}
	} else if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeInvalidRequest, msgInvalidBody)
		return
	}

	if _, err := h.accounts.Register(r.Context(), req); err != nil {
		h.respond.write(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, httpx.MessageResponse{Message: "User registered successfully"})
}

// Login verifies credentials and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginInput
	if isFormRequest(r) {
		req = services.LoginInput{
			Username: r.PostFormValue("username"),
			Password: r.PostFormValue("password"),
		}
	} else if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeInvalidRequest, msgInvalidBody)
		return
	}

	result, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		h.respond.write(w, r, err)
		return
	}

	h.cookie.Set(w, result.Token, h.accounts.TokenTTL())

	resp := LoginResponse{
		Message: "Login successful",
		User: auth.Identity{
			UserID:   result.Account.ID,
			Username: result.Account.Username,
			Email:    result.Account.Email,
		},
	}
	if h.exposeToken {
		resp.Token = result.Token
		resp.ExpiresAt = result.ExpiresAt.Unix()
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// Logout clears the session cookie. Tokens are stateless, so a copy held
// elsewhere stays valid until it expires.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookie.Clear(w)
	httpx.WriteJSON(w, http.StatusOK, httpx.MessageResponse{Message: "Logged out successfully"})
}

// CheckAuth reports the identity bound by the session gate.
func (h *AuthHandler) CheckAuth(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeMissingCredential, "No authentication token found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, CheckAuthResponse{Authenticated: true, User: identity})
}

// Home is the protected landing endpoint.
func Home(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeMissingCredential, "No authentication token found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, HomeResponse{Message: "Welcome to the homepage", User: identity})
}

type LoginResponse struct {
	Message   string        `json:"message"`
	User      auth.Identity `json:"user"`
	Token     string        `json:"token,omitempty"`
	ExpiresAt int64         `json:"expiresAt,omitempty"`
}

type CheckAuthResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          auth.Identity `json:"user"`
}

type HomeResponse struct {
	Message string        `json:"message"`
	User    auth.Identity `json:"user"`
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst zero so
// the input rules report the missing fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
