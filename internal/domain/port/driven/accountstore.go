// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
)

// ErrAccountNotFound indicates the requested account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// AccountStore defines the driven port for archived account persistence.
// Remove returns ErrAccountNotFound if the account does not exist.
type AccountStore interface {
	Upsert(ctx context.Context, account model.Account) error
	Remove(ctx context.Context, url string) error
	GetByURL(ctx context.Context, url string) (*model.Account, error)
	ListAll(ctx context.Context) ([]model.Account, error)
	// SetCampaignURL links an account to its canonical campaign URL.
	SetCampaignURL(ctx context.Context, accountURL, campaignURL string) error
}
