// internal/app/features/profile/profile.go
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dalemusser/impacthub/internal/app/system/auth"
	"github.com/dalemusser/impacthub/internal/app/system/authstate"
	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/app/system/identity"
	"github.com/dalemusser/impacthub/internal/app/system/timeouts"
	"github.com/dalemusser/impacthub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/templates"
	"go.uber.org/zap"
)

const maxFieldLen = 100

// editableFields are the profile fields a user may change about
// themselves. Role and totals are managed elsewhere.
var editableFields = []string{"first_name", "last_name", "display_name", "organization"}

// profileData is the view model for the profile page.
type profileData struct {
	Title      string
	IsLoggedIn bool
	UserName   string

	Email        string
	Provider     string
	FirstName    string
	LastName     string
	DisplayName  string
	Organization string
	Role         string

	ShowPasswordSection bool
	MinPasswordLength   int

	Error   string
	Success string
}

func newProfileData(u *models.MergedUser) profileData {
	return profileData{
		Title:               "Profile",
		IsLoggedIn:          true,
		UserName:            u.FullName(),
		Email:               u.Email(),
		Provider:            formatProvider(u.Provider()),
		FirstName:           u.FirstName(),
		LastName:            u.LastName(),
		DisplayName:         u.DisplayName(),
		Organization:        u.Organization(),
		Role:                u.Role(),
		ShowPasswordSection: u.Provider() == "password",
		MinPasswordLength:   identity.MinPasswordLength,
	}
}

// ServeProfile renders the user's profile page.
func (h *Handler) ServeProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	data := newProfileData(u)
	switch r.URL.Query().Get("success") {
	case "profile":
		data.Success = "Profile saved."
	case "password":
		data.Success = "Password changed successfully."
	}
	templates.Render(w, r, "profile", data)
}

// HandleUpdateProfile saves the editable profile fields. The session
// engine follows the profile document, so the merged user reflects the
// change on the next request.
func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, u, http.StatusBadRequest, "Invalid form data.")
		return
	}

	fields := docstore.Doc{}
	for _, f := range editableFields {
		v := strings.TrimSpace(r.PostFormValue(f))
		if utf8.RuneCountInString(v) > maxFieldLen {
			h.fail(w, r, u, http.StatusBadRequest, "Profile fields must be at most 100 characters.")
			return
		}
		fields[f] = v
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	uid := u.UID()
	err := h.Store.Update(ctx, authstate.ProfilesCollection, uid, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		_, err = h.Store.Write(ctx, authstate.ProfilesCollection, uid, fields)
	}
	if err != nil {
		h.Log.Error("update profile failed", zap.String("user_id", uid), zap.Error(err))
		h.fail(w, r, u, http.StatusInternalServerError, "Failed to save profile.")
		return
	}

	h.Log.Info("profile updated", zap.String("user_id", uid))
	http.Redirect(w, r, "/profile?success=profile", http.StatusSeeOther)
}

// HandleChangePassword processes the password change form.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, u, http.StatusBadRequest, "Invalid form data.")
		return
	}

	current := r.PostFormValue("current_password")
	next := r.PostFormValue("new_password")
	if next != r.PostFormValue("confirm_password") {
		h.fail(w, r, u, http.StatusBadRequest, "New passwords do not match.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	err := h.Accounts.ChangePassword(ctx, u.UID(), current, next)
	switch {
	case err == nil:
		http.Redirect(w, r, "/profile?success=password", http.StatusSeeOther)
	case errors.Is(err, identity.ErrNoPassword):
		h.fail(w, r, u, http.StatusBadRequest, "Password change is only available for password sign-in.")
	case errors.Is(err, identity.ErrInvalidCredentials):
		h.fail(w, r, u, http.StatusBadRequest, "Current password is incorrect.")
	case errors.Is(err, identity.ErrWeakPassword):
		h.fail(w, r, u, http.StatusBadRequest, "New password must be at least 8 characters.")
	case errors.Is(err, identity.ErrSamePassword):
		h.fail(w, r, u, http.StatusBadRequest, "New password cannot be the same as your current password.")
	default:
		h.Log.Error("change password failed", zap.String("user_id", u.UID()), zap.Error(err))
		h.fail(w, r, u, http.StatusInternalServerError, "Failed to update password.")
	}
}

// fail re-renders the profile page with msg, or answers JSON callers.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, u *models.MergedUser, status int, msg string) {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
		return
	}
	data := newProfileData(u)
	data.Error = msg
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	templates.Render(w, r, "profile", data)
}

// formatProvider returns a human-readable label for the sign-in provider.
func formatProvider(p string) string {
	switch p {
	case "password":
		return "Password"
	case "google":
		return "Google"
	case "":
		return "Unknown"
	default:
		return p
	}
}
