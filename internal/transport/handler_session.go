package transport

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/observability"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	SignedIn  bool           `json:"signed_in"`
	State     string         `json:"state"`
	Subject   string         `json:"subject,omitempty"`
	Role      string         `json:"role,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Profile   map[string]any `json:"profile,omitempty"`
	Redirect  string         `json:"redirect,omitempty"`
}

func handleLogin(deps Dependencies, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeBody(r, validate, &req); err != nil {
			WriteError(w, err)
			return
		}

		profile, err := deps.Auth.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			WriteError(w, err)
			return
		}

		// Pages opened under the previous session hold stale lists.
		deps.Pages.CloseAll()
		deps.Navigator.Clear()

		WriteJSON(w, http.StatusOK, sessionResponse{
			SignedIn: true,
			State:    deps.Session.State().String(),
			Profile:  profile,
		})
	}
}

func handleLogout(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Pages.CloseAll()
		if err := deps.Auth.Logout(r.Context()); err != nil {
			observability.RequestLogger(r.Context(), deps.Logger).Error("logout failed", zap.Error(err))
			WriteError(w, err)
			return
		}
		deps.Navigator.Clear()
		WriteJSON(w, http.StatusOK, sessionResponse{
			State:    deps.Session.State().String(),
			Redirect: deps.Config.Session.LoginRoute,
		})
	}
}

func handleSession(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := sessionResponse{
			State:    deps.Session.State().String(),
			Redirect: deps.Navigator.Pending(),
		}

		token, err := deps.Session.Token(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		if token != "" && resp.Redirect == "" {
			resp.SignedIn = true
			if claims, err := deps.Session.Claims(r.Context()); err == nil {
				resp.Subject = claims.Subject
				resp.Role = claims.Role
				if !claims.ExpiresAt.IsZero() {
					exp := claims.ExpiresAt
					resp.ExpiresAt = &exp
				}
			}
			if profile, err := deps.Session.Profile(r.Context()); err == nil {
				resp.Profile = profile
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}
