package handler

import (
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gitbridge/internal/api/response"
	"gitbridge/internal/linker"
	"gitbridge/internal/store"
)

// NewStartLinkHandler returns the handler for GET /auth/link/{userID}.
// It begins a handshake for the Discord user and sends their browser to
// GitHub's authorize page.
func NewStartLinkHandler(svc *linker.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if userID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "user id is required", nil)
			return
		}
		http.Redirect(w, r, svc.BeginLink(userID), http.StatusFound)
	}
}

// NewLinkCallbackHandler returns the handler for GET /auth/callback, the
// OAuth redirect target. It resolves the waiting broker session and renders
// a human-readable status page; the command side reports the outcome to the
// user in Discord on its own.
func NewLinkCallbackHandler(svc *linker.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		code := r.URL.Query().Get("code")
		if state == "" || code == "" {
			statusPage(w, http.StatusBadRequest, "Authorization Failed",
				"The GitHub authorization was denied or the callback was malformed. Run /link again and approve the request.")
			return
		}

		username, err := svc.CompleteCallback(r.Context(), state, code)
		if err != nil {
			statusPage(w, http.StatusBadRequest, "Authentication Failed",
				"We couldn't complete the link. Return to Discord and run /link again.")
			return
		}

		statusPage(w, http.StatusOK, "Authentication Successful!",
			fmt.Sprintf("Your Discord account is now linked to GitHub user %s. You can close this window and return to Discord.", username))
	}
}

// NewGetUserLinkHandler returns the handler for GET /api/v1/users/{userID}/link.
func NewGetUserLinkHandler(svc *linker.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		link, err := svc.LinkedIdentity(r.Context(), chi.URLParam(r, "userID"))
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_LINKED", "User has not linked a GitHub account", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load link", nil)
			return
		}
		response.JSON(w, link)
	}
}

// NewUnlinkHandler returns the handler for DELETE /api/v1/users/{userID}/link.
func NewUnlinkHandler(svc *linker.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.Unlink(r.Context(), chi.URLParam(r, "userID"))
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_LINKED", "User has not linked a GitHub account", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to unlink", nil)
			return
		}
		response.JSON(w, map[string]string{"status": "unlinked"})
	}
}

func statusPage(w http.ResponseWriter, status int, title, subtitle string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html><head><title>%s</title></head>
<body style="font-family:sans-serif;text-align:center;margin-top:4rem">
<h1>%s</h1>
<p>%s</p>
<p><small>You can safely close this window.</small></p>
</body></html>`,
		html.EscapeString(title), html.EscapeString(title), html.EscapeString(subtitle))
}
