// internal/domain/models/profile.go
package models

import (
	"encoding/json"
	"time"
)

// UserProfile is the hub-side profile document, keyed by Principal.UID in the
// profiles collection. Profile edit forms and admin tools own its writes; the
// session code only reads it.
type UserProfile struct {
	FirstName          string     `bson:"first_name" json:"first_name"`
	LastName           string     `bson:"last_name" json:"last_name"`
	Organization       string     `bson:"organization,omitempty" json:"organization,omitempty"`
	Role               string     `bson:"role,omitempty" json:"role,omitempty"` // admin | partner
	TotalContributions float64    `bson:"total_contributions,omitempty" json:"total_contributions,omitempty"`
	CreatedAt          *time.Time `bson:"created_at,omitempty" json:"created_at,omitempty"`
}

// MergedUser is a Principal overlaid with its profile document.
//
// NOTE:
//   - Profile fields shadow principal fields of the same name, so a stray
//     "email" key in a profile document replaces the provider's email.
type MergedUser struct {
	Fields map[string]any `json:"-"`
}

// MergeUser builds a MergedUser from a principal and an optional profile
// document (nil means no profile yet).
func MergeUser(p Principal, profile map[string]any) *MergedUser {
	fields := p.Fields()
	for k, v := range profile {
		if k == "_id" {
			continue
		}
		fields[k] = v
	}
	return &MergedUser{Fields: fields}
}

// MarshalJSON renders the flattened field map.
func (u *MergedUser) MarshalJSON() ([]byte, error) {
	if u == nil || u.Fields == nil {
		return []byte("null"), nil
	}
	return json.Marshal(u.Fields)
}

func (u *MergedUser) str(key string) string {
	if u == nil {
		return ""
	}
	s, _ := u.Fields[key].(string)
	return s
}

func (u *MergedUser) UID() string          { return u.str("uid") }
func (u *MergedUser) Email() string        { return u.str("email") }
func (u *MergedUser) DisplayName() string  { return u.str("display_name") }
func (u *MergedUser) FirstName() string    { return u.str("first_name") }
func (u *MergedUser) LastName() string     { return u.str("last_name") }
func (u *MergedUser) Organization() string { return u.str("organization") }
func (u *MergedUser) Role() string         { return u.str("role") }
func (u *MergedUser) Provider() string     { return u.str("provider") }

// FullName joins first and last name, falling back to the display name.
func (u *MergedUser) FullName() string {
	first, last := u.FirstName(), u.LastName()
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	}
	return u.DisplayName()
}

// TotalContributions returns the numeric total regardless of how the store
// decoded it.
func (u *MergedUser) TotalContributions() float64 {
	if u == nil {
		return 0
	}
	switch v := u.Fields["total_contributions"].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
