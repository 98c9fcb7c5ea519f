package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRange    = errors.New("end date must not be before start date")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidDiscount = errors.New("discount percent must be between 0 and 100")
	ErrInvalidBookable = errors.New("invalid bookable reference")
	ErrInvalidStatus   = errors.New("invalid booking status")
)

var (
	ErrUnknownItem       = errors.New("item not found")
	ErrUnknownUnit       = errors.New("inventory unit not found")
	ErrUnknownKit        = errors.New("kit not found")
	ErrUnknownVariant    = errors.New("variant not found")
	ErrUnknownCommitment = errors.New("commitment not found")
)

var (
	ErrInsufficientInventory  = errors.New("insufficient inventory")
	ErrMisconfiguredRule      = errors.New("misconfigured pricing rule")
	ErrIdempotencyKeyInFlight = errors.New("a commit with this idempotency key is already in progress")
	ErrIdempotencyKeyReused   = errors.New("idempotency key was used for a different request")
	ErrConcurrentUpdate       = errors.New("booking changed while it was being updated, retry")
)

// InsufficientInventoryError reports how much of the bookable is actually free
// so the caller can offer a smaller quantity or other dates.
type InsufficientInventoryError struct {
	Bookable  BookableRef
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for %s: requested %d, available %d", e.Bookable, e.Requested, e.Available)
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}

// MisconfiguredRuleError names a stored rule the engine refuses to apply.
type MisconfiguredRuleError struct {
	RuleID int64
	Reason string
}

func (e *MisconfiguredRuleError) Error() string {
	return fmt.Sprintf("pricing rule %d %s", e.RuleID, e.Reason)
}

func (e *MisconfiguredRuleError) Is(target error) bool {
	return target == ErrMisconfiguredRule
}
