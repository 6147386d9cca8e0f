package port

import (
	"context"

	uuid "github.com/google/uuid"

	"github.com/arklim/social-platform-accounts/internal/core/domain"
)

// AccountRepository exposes persistence behavior for account aggregates.
// Every tenant-scoped lookup filters on the tenant column; Update enforces
// optimistic concurrency and returns repository.ErrConcurrency on a stale
// aggregate.
type AccountRepository interface {
	Add(ctx context.Context, account *domain.Account) error
	Update(ctx context.Context, account *domain.Account) error
	Remove(ctx context.Context, id uuid.UUID) error

	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByUsername(ctx context.Context, tenant, username string) (*domain.Account, error)
	GetByEmail(ctx context.Context, tenant, email string) (*domain.Account, error)
	GetByVerificationKey(ctx context.Context, key string) (*domain.Account, error)
	GetByLinkedAccount(ctx context.Context, tenant, provider, providerAccountID string) (*domain.Account, error)
	GetByCertificate(ctx context.Context, tenant, thumbprint string) (*domain.Account, error)
}
