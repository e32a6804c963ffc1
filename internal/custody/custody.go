// Package custody is the engine's boundary to asset and fund ownership.
// The auction core never holds value itself: it directs an AssetCustody to
// move tokens and native funds between parties and per-listing escrow
// accounts, and treats every call as atomic.
package custody

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Errors returned by custody operations.
var (
	ErrUnknownAsset      = errors.New("asset is not registered with custody")
	ErrNotAssetOwner     = errors.New("sender does not hold the asset")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Restorer rebuilds custody state that lives in process memory. The
// registry replays escrow holdings through it when it recovers after a
// restart; backends that persist their own state do not implement it and
// are left alone.
type Restorer interface {
	// RegisterAsset records owner as the current holder of a token.
	RegisterAsset(contract string, assetID int64, owner string)
	// SetBalance overwrites an account balance.
	SetBalance(account string, amount decimal.Decimal)
}

// AssetCustody moves non-fungible assets and native funds. A failed call
// must leave custody state untouched; the caller aborts its own operation
// on error.
type AssetCustody interface {
	// TransferAsset moves one token between holders. Escrow accounts are
	// ordinary holder names.
	TransferAsset(ctx context.Context, contract string, assetID int64, from, to string) error
	// DepositFunds moves amount from a party's balance into an escrow account.
	DepositFunds(ctx context.Context, account, from string, amount decimal.Decimal) error
	// ReleaseFunds pays amount out of an escrow account to a party.
	ReleaseFunds(ctx context.Context, account, to string, amount decimal.Decimal) error
}
