package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusDraft     BookingStatus = "draft"
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusPaid      BookingStatus = "paid"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// ActiveBookingStatuses are the booking states whose commitments consume inventory.
var ActiveBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusPaid,
	BookingStatusCompleted,
}

func (s BookingStatus) Active() bool {
	for _, a := range ActiveBookingStatuses {
		if s == a {
			return true
		}
	}
	return false
}

func (s BookingStatus) Valid() bool {
	return s == BookingStatusDraft || s == BookingStatusCancelled || s.Active()
}

// CommitmentID identifies everything reserved by one commit call.
type CommitmentID = uuid.UUID

// Commitment reserves Quantity of an item (or one specific unit) over Range.
// Rows created by the same commit call share a GroupID.
type Commitment struct {
	ID                  int64           `json:"id"`
	GroupID             CommitmentID    `json:"group_id"`
	BookingID           int64           `json:"booking_id"`
	BookingStatus       BookingStatus   `json:"booking_status"`
	Bookable            BookableRef     `json:"bookable"`
	LineQuantity        int             `json:"line_quantity"`
	LineDiscountPercent decimal.Decimal `json:"line_discount_percent"`
	ItemID              int64           `json:"item_id"`
	UnitID              *int64          `json:"unit_id,omitempty"`
	Quantity            int             `json:"quantity"`
	Range               DateRange       `json:"range"`
	CreatedOn           time.Time       `json:"created_on"`
	ReleasedOn          *time.Time      `json:"released_on,omitempty"`
}

func (c Commitment) Active() bool {
	return c.ReleasedOn == nil && c.BookingStatus.Active()
}

type LineState string

const (
	LineStateProposed  LineState = "proposed"
	LineStateCommitted LineState = "committed"
	LineStateRejected  LineState = "rejected"
)

// LineItem is the booking line the assembler drives from proposal to commitment.
type LineItem struct {
	BookingID           int64           `json:"booking_id"`
	BookingStatus       BookingStatus   `json:"booking_status"`
	Bookable            BookableRef     `json:"bookable"`
	Range               DateRange       `json:"range"`
	Quantity            int             `json:"quantity"`
	LineDiscountPercent decimal.Decimal `json:"line_discount_percent"`
	IdempotencyKey      string          `json:"idempotency_key,omitempty"`

	State        LineState    `json:"state"`
	CommitmentID CommitmentID `json:"commitment_id"`
	Quote        *PriceQuote  `json:"quote,omitempty"`
}
