// internal/app/features/profile/handler.go
package profile

import (
	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/app/system/identity"
	"go.uber.org/zap"
)

// Handler owns all user profile handlers.
type Handler struct {
	Accounts *identity.Accounts
	Store    docstore.Store
	Log      *zap.Logger
}

// NewHandler constructs a Handler over the account directory and the store
// holding profile documents.
func NewHandler(accounts *identity.Accounts, store docstore.Store, logger *zap.Logger) *Handler {
	return &Handler{
		Accounts: accounts,
		Store:    store,
		Log:      logger,
	}
}
