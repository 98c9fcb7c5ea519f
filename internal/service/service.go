package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"equiprent-backend/internal/availability"
	"equiprent-backend/internal/domain"
)

// Availability is the answer to an availability probe.
type Availability struct {
	Available   bool `json:"available"`
	MaxQuantity int  `json:"max_quantity"`
}

// BookingService is the entry point the booking CRUD layer calls. Every
// method works on the data of one company.
type BookingService interface {
	CheckAvailability(ctx context.Context, companyID int64, ref domain.BookableRef, r domain.DateRange, qty int) (*Availability, error)
	Quote(ctx context.Context, companyID int64, ref domain.BookableRef, r domain.DateRange, qty int, lineDiscount decimal.Decimal) (*domain.PriceQuote, error)
	// Commit reserves inventory for line and attaches its quote. On failure nothing is reserved.
	Commit(ctx context.Context, companyID int64, line *domain.LineItem) (domain.CommitmentID, error)
	// Release frees a commitment. Releasing an unknown or released commitment is a no-op.
	Release(ctx context.Context, companyID int64, id domain.CommitmentID) error
	Extend(ctx context.Context, companyID int64, id domain.CommitmentID, newEnd time.Time) (*domain.PriceQuote, error)
	Reschedule(ctx context.Context, companyID int64, id domain.CommitmentID, r domain.DateRange) (*domain.PriceQuote, error)
	// SyncBookingStatus records a booking transition made by the CRUD layer.
	SyncBookingStatus(ctx context.Context, companyID int64, bookingID int64, status domain.BookingStatus) error
	ReleaseCancelled(ctx context.Context, companyID int64) (int, error)
	PurgeReleased(ctx context.Context, companyID int64, before time.Time) (int64, error)
	Utilization(ctx context.Context, companyID int64, itemID int64, r domain.DateRange) (*availability.Utilization, error)
}
