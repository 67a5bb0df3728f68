// internal/domain/models/account.go
package models

import "time"

// Account is the identity provider's credential record. The ID doubles as
// the Principal UID and the profiles document key.
type Account struct {
	ID           string    `bson:"_id" json:"id"`
	Email        string    `bson:"email" json:"email"`
	EmailCI      string    `bson:"email_ci" json:"email_ci"` // lowercase, diacritics-stripped
	DisplayName  string    `bson:"display_name,omitempty" json:"display_name,omitempty"`
	PasswordHash string    `bson:"password_hash,omitempty" json:"-"`
	Provider     string    `bson:"provider" json:"provider"` // password | google
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}
