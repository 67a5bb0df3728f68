package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AccountsCollection holds one document per account, keyed by UID.
const AccountsCollection = "accounts"

// Accounts is the credential directory behind password and Google sign-in.
type Accounts struct {
	store docstore.Store
	log   *zap.Logger
	cost  int
	now   func() time.Time
}

// NewAccounts creates a directory on store hashing with bcrypt cost 12.
func NewAccounts(store docstore.Store, logger *zap.Logger) *Accounts {
	return &Accounts{store: store, log: logger, cost: 12, now: time.Now}
}

// WithCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func (a *Accounts) WithCost(cost int) *Accounts {
	a.cost = cost
	return a
}

// Register creates a password account.
func (a *Accounts) Register(ctx context.Context, email, password, displayName string) (models.Account, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return models.Account{}, fmt.Errorf("invalid email %q", email)
	}
	if password == "" {
		return models.Account{}, errors.New("password required")
	}
	if _, err := a.findByEmail(ctx, email); err == nil {
		return models.Account{}, ErrEmailTaken
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return models.Account{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return models.Account{}, fmt.Errorf("hash password: %w", err)
	}
	acct := models.Account{
		Email:        email,
		EmailCI:      text.Fold(email),
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		Provider:     "password",
		CreatedAt:    a.now().UTC(),
	}
	id, err := a.store.Write(ctx, AccountsCollection, "", accountDoc(acct))
	if err != nil {
		return models.Account{}, fmt.Errorf("create account: %w", err)
	}
	acct.ID = id
	a.log.Info("account registered", zap.String("user_id", id))
	return acct, nil
}

// Authenticate checks a password sign-in. Unknown emails and wrong passwords
// both return ErrInvalidCredentials.
func (a *Accounts) Authenticate(ctx context.Context, email, password string) (models.Principal, error) {
	acct, err := a.findByEmail(ctx, email)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Principal{}, err
	}
	if acct.PasswordHash == "" {
		return models.Principal{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return models.Principal{}, ErrInvalidCredentials
	}
	return principalOf(acct), nil
}

// ChangePassword replaces uid's password after checking the current one.
// A wrong current password is ErrInvalidCredentials.
func (a *Accounts) ChangePassword(ctx context.Context, uid, current, next string) error {
	acct, err := a.Get(ctx, uid)
	if err != nil {
		return err
	}
	if acct.PasswordHash == "" {
		return ErrNoPassword
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	if len(next) < MinPasswordLength {
		return ErrWeakPassword
	}
	if next == current {
		return ErrSamePassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), a.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := a.store.Update(ctx, AccountsCollection, uid, docstore.Doc{"password_hash": string(hash)}); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	a.log.Info("password changed", zap.String("user_id", uid))
	return nil
}

// UpsertExternal returns the account for an email verified by an external
// provider, creating it on first sign-in.
func (a *Accounts) UpsertExternal(ctx context.Context, email, displayName, provider string) (models.Principal, error) {
	acct, err := a.findByEmail(ctx, email)
	switch {
	case err == nil:
		p := principalOf(acct)
		p.Provider = provider
		p.EmailVerified = true
		return p, nil
	case !errors.Is(err, docstore.ErrNotFound):
		return models.Principal{}, err
	}

	acct = models.Account{
		Email:       strings.TrimSpace(email),
		EmailCI:     text.Fold(email),
		DisplayName: strings.TrimSpace(displayName),
		Provider:    provider,
		CreatedAt:   a.now().UTC(),
	}
	id, err := a.store.Write(ctx, AccountsCollection, "", accountDoc(acct))
	if err != nil {
		return models.Principal{}, fmt.Errorf("create account: %w", err)
	}
	acct.ID = id
	a.log.Info("external account created", zap.String("user_id", id), zap.String("provider", provider))
	p := principalOf(acct)
	p.EmailVerified = true
	return p, nil
}

// Get returns the account with the given UID.
func (a *Accounts) Get(ctx context.Context, uid string) (models.Account, error) {
	d, err := a.store.Get(ctx, AccountsCollection, uid)
	if err != nil {
		return models.Account{}, err
	}
	return accountFromDoc(d), nil
}

// LookupEmail returns the email address of uid.
func (a *Accounts) LookupEmail(ctx context.Context, uid string) (string, error) {
	acct, err := a.Get(ctx, uid)
	if err != nil {
		return "", err
	}
	return acct.Email, nil
}

// ByEmail returns the account registered under email, compared
// case-insensitively, or docstore.ErrNotFound.
func (a *Accounts) ByEmail(ctx context.Context, email string) (models.Account, error) {
	return a.findByEmail(ctx, email)
}

func (a *Accounts) findByEmail(ctx context.Context, email string) (models.Account, error) {
	docs, err := a.store.Query(ctx, AccountsCollection,
		[]docstore.Filter{docstore.Where("email_ci", text.Fold(strings.TrimSpace(email)))},
		docstore.Order{})
	if err != nil {
		return models.Account{}, err
	}
	if len(docs) == 0 {
		return models.Account{}, docstore.ErrNotFound
	}
	return accountFromDoc(docs[0]), nil
}

func principalOf(acct models.Account) models.Principal {
	return models.Principal{
		UID:         acct.ID,
		Email:       acct.Email,
		DisplayName: acct.DisplayName,
		Provider:    acct.Provider,
	}
}

func accountDoc(acct models.Account) docstore.Doc {
	d := docstore.Doc{
		"email":      acct.Email,
		"email_ci":   acct.EmailCI,
		"provider":   acct.Provider,
		"created_at": acct.CreatedAt,
	}
	if acct.DisplayName != "" {
		d["display_name"] = acct.DisplayName
	}
	if acct.PasswordHash != "" {
		d["password_hash"] = acct.PasswordHash
	}
	return d
}

func accountFromDoc(d docstore.Doc) models.Account {
	str := func(k string) string {
		s, _ := d[k].(string)
		return s
	}
	created, _ := d["created_at"].(time.Time)
	return models.Account{
		ID:           d.ID(),
		Email:        str("email"),
		EmailCI:      str("email_ci"),
		DisplayName:  str("display_name"),
		PasswordHash: str("password_hash"),
		Provider:     str("provider"),
		CreatedAt:    created,
	}
}
