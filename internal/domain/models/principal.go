// internal/domain/models/principal.go
package models

// Principal is the identity issued by the identity provider for a signed-in
// session. It is immutable from the hub's point of view; only sign-in and
// sign-out change it.
type Principal struct {
	UID           string         `json:"uid"`
	Email         string         `json:"email"`
	DisplayName   string         `json:"display_name,omitempty"`
	EmailVerified bool           `json:"email_verified"`
	Provider      string         `json:"provider,omitempty"` // password | google
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Fields flattens the principal into a field map. Metadata keys are copied
// first so the identity fields always win over stray metadata.
func (p Principal) Fields() map[string]any {
	out := make(map[string]any, len(p.Metadata)+5)
	for k, v := range p.Metadata {
		out[k] = v
	}
	out["uid"] = p.UID
	out["email"] = p.Email
	out["email_verified"] = p.EmailVerified
	if p.DisplayName != "" {
		out["display_name"] = p.DisplayName
	}
	if p.Provider != "" {
		out["provider"] = p.Provider
	}
	return out
}
