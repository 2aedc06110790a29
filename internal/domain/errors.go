package domain

import "errors"

var (
	// ErrInvalidPrice is returned when a listing is created with a non-positive price
	ErrInvalidPrice = errors.New("invalid price")

	// ErrFeeMismatch is returned when the fee paid does not equal the current listing fee
	ErrFeeMismatch = errors.New("fee mismatch")

	// ErrTransferRejected is returned when the token registry refuses a custody transfer
	ErrTransferRejected = errors.New("transfer rejected")

	// ErrUnknownListing is returned when a purchase references a listing that was never created
	ErrUnknownListing = errors.New("unknown listing")

	// ErrAlreadySold is returned when a purchase targets a listing that is already sold
	ErrAlreadySold = errors.New("already sold")

	// ErrPaymentMismatch is returned when the payment does not equal the listing price exactly
	ErrPaymentMismatch = errors.New("payment mismatch")
)
