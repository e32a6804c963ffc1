package auction

import "errors"

// Validation errors for creation parameters and registry policy.
var (
	ErrInvalidConfig              = errors.New("min auction duration must be positive")
	ErrDurationTooShort           = errors.New("auction duration is below the configured minimum")
	ErrInvalidIncrement           = errors.New("min increment must be greater than zero")
	ErrInvalidBuyPrice            = errors.New("direct buy price must be greater than zero")
	ErrStartPriceNotBelowBuyPrice = errors.New("start price must be below the direct buy price")
	ErrInvalidAssetRef            = errors.New("asset contract cannot be the zero address")
	ErrInvalidAssetID             = errors.New("asset id must be greater than zero")
)

// Authorization errors.
var (
	ErrNotOwner         = errors.New("caller is not the registry owner")
	ErrNotCreator       = errors.New("caller is not the auction creator")
	ErrNotHighestBidder = errors.New("caller is not the highest bidder")
	ErrCreatorCannotBid = errors.New("creator cannot bid on their own auction")
)

// State errors.
var (
	ErrNotFound           = errors.New("auction not found")
	ErrAuctionNotOpen     = errors.New("auction is not open")
	ErrAuctionNotResolved = errors.New("auction has not resolved yet")
	ErrBidAlreadyPlaced   = errors.New("auction already has at least one bid")
	ErrAlreadyWithdrawn   = errors.New("already withdrawn")
	ErrAlreadyDeleted     = errors.New("auction is already deleted")
	ErrNoBids             = errors.New("auction ended without bids")
)

// Amount errors.
var (
	ErrBelowStartPrice   = errors.New("bid is below the start price")
	ErrBelowMinIncrement = errors.New("bid is below the highest bid plus min increment")
)
