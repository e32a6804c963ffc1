package custody

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

type assetKey struct {
	contract string
	id       int64
}

// Vault is an in-memory AssetCustody tracking token holders and account
// balances. Deployments that settle on an external ledger swap in an
// adapter implementing the same interface; the engine only sees the
// interface either way.
type Vault struct {
	mu       sync.Mutex
	holders  map[assetKey]string
	balances map[string]decimal.Decimal
}

// NewVault returns an empty Vault.
func NewVault() *Vault {
	return &Vault{
		holders:  make(map[assetKey]string),
		balances: make(map[string]decimal.Decimal),
	}
}

// RegisterAsset records owner as the holder of a token.
func (v *Vault) RegisterAsset(contract string, assetID int64, owner string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.holders[assetKey{contract, assetID}] = owner
}

// Credit adds amount to an account balance.
func (v *Vault) Credit(account string, amount decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[account] = v.balances[account].Add(amount)
}

// SetBalance overwrites an account balance. Escrow reconstruction after
// a restart goes through here; regular flows use Credit and the transfer
// methods.
func (v *Vault) SetBalance(account string, amount decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[account] = amount
}

// Balance returns the current balance of an account.
func (v *Vault) Balance(account string) decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[account]
}

// AssetHolder returns the current holder of a token.
func (v *Vault) AssetHolder(contract string, assetID int64) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	owner, ok := v.holders[assetKey{contract, assetID}]
	return owner, ok
}

// TransferAsset moves a token from one holder to another.
func (v *Vault) TransferAsset(_ context.Context, contract string, assetID int64, from, to string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := assetKey{contract, assetID}
	owner, ok := v.holders[key]
	if !ok {
		return ErrUnknownAsset
	}
	if owner != from {
		return ErrNotAssetOwner
	}
	v.holders[key] = to
	return nil
}

// DepositFunds moves amount from a party's balance into an escrow account.
func (v *Vault) DepositFunds(_ context.Context, account, from string, amount decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if v.balances[from].LessThan(amount) {
		return ErrInsufficientFunds
	}
	v.balances[from] = v.balances[from].Sub(amount)
	v.balances[account] = v.balances[account].Add(amount)
	return nil
}

// ReleaseFunds pays amount out of an escrow account to a party.
func (v *Vault) ReleaseFunds(_ context.Context, account, to string, amount decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if v.balances[account].LessThan(amount) {
		return ErrInsufficientFunds
	}
	v.balances[account] = v.balances[account].Sub(amount)
	v.balances[to] = v.balances[to].Add(amount)
	return nil
}
