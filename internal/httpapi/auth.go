package httpapi

import (
	"net/http"
	"time"

	"github.com/yanizio/siteconf/internal/auth"
	"github.com/yanizio/siteconf/internal/meta"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	credentials
	Code string `json:"code"`
}

type userResponse struct {
	Success   bool       `json:"success"`
	User      *meta.User `json:"user"`
	TenantID  string     `json:"tenantId,omitempty"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type okResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (a *API) signup(w http.ResponseWriter, r *http.Request) {
	const op = "httpapi.signup"

	var req signupRequest
	if err := a.decode(w, r, op, &req); err != nil {
		a.writeErr(w, r, err)
		return
	}
	if err := required(op, [2]string{"email", req.Email}, [2]string{"password", req.Password},
		[2]string{"code", req.Code}); err != nil {
		a.writeErr(w, r, err)
		return
	}

	u, err := a.d.Accounts.Signup(r.Context(), req.Email, req.Password, req.Code)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{Success: true, User: u, TenantID: u.ConfigID})
}

// login sets the session cookie and also returns the token for clients
// that prefer the Authorization header.
func (a *API) login(w http.ResponseWriter, r *http.Request) {
	const op = "httpapi.login"

	var req credentials
	if err := a.decode(w, r, op, &req); err != nil {
		a.writeErr(w, r, err)
		return
	}
	if err := required(op, [2]string{"email", req.Email}, [2]string{"password", req.Password}); err != nil {
		a.writeErr(w, r, err)
		return
	}

	u, sess, err := a.d.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	a.d.Cookies.Set(w, sess.ID, sess.ExpiresAt)
	exp := sess.ExpiresAt.UTC()
	writeJSON(w, http.StatusOK, userResponse{
		Success:   true,
		User:      u,
		TenantID:  u.ConfigID,
		Token:     sess.ID,
		ExpiresAt: &exp,
	})
}

// logout is idempotent and always clears the cookie.
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	token, _ := a.d.Cookies.Token(r)
	if err := a.d.Accounts.Logout(r.Context(), token); err != nil {
		a.writeErr(w, r, err)
		return
	}
	a.d.Cookies.Clear(w)
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

func (a *API) currentSession(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, userResponse{Success: true, User: u, TenantID: u.ConfigID})
}

// forgotPassword answers the same way whether or not the account exists.
func (a *API) forgotPassword(w http.ResponseWriter, r *http.Request) {
	const op = "httpapi.forgotPassword"

	var req struct {
		Email string `json:"email"`
	}
	if err := a.decode(w, r, op, &req); err != nil {
		a.writeErr(w, r, err)
		return
	}
	if err := required(op, [2]string{"email", req.Email}); err != nil {
		a.writeErr(w, r, err)
		return
	}

	a.d.Accounts.RequestPasswordReset(r.Context(), req.Email)
	writeJSON(w, http.StatusOK, okResponse{
		Success: true,
		Message: "if the account exists, a reset link has been sent",
	})
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	const op = "httpapi.resetPassword"

	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := a.decode(w, r, op, &req); err != nil {
		a.writeErr(w, r, err)
		return
	}
	if err := required(op, [2]string{"token", req.Token}, [2]string{"password", req.Password}); err != nil {
		a.writeErr(w, r, err)
		return
	}

	if err := a.d.Accounts.CompletePasswordReset(r.Context(), req.Token, req.Password); err != nil {
		a.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}
