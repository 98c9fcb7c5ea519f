package http

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"equiprent-backend/internal/availability"
	"equiprent-backend/internal/domain"
	"equiprent-backend/internal/service"
)

// MockBookingService
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) CheckAvailability(ctx context.Context, companyID int64, ref domain.BookableRef, r domain.DateRange, qty int) (*service.Availability, error) {
	args := m.Called(ctx, companyID, ref, r, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Availability), args.Error(1)
}

func (m *MockBookingService) Quote(ctx context.Context, companyID int64, ref domain.BookableRef, r domain.DateRange, qty int, lineDiscount decimal.Decimal) (*domain.PriceQuote, error) {
	args := m.Called(ctx, companyID, ref, r, qty, lineDiscount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PriceQuote), args.Error(1)
}

func (m *MockBookingService) Commit(ctx context.Context, companyID int64, line *domain.LineItem) (domain.CommitmentID, error) {
	args := m.Called(ctx, companyID, line)
	return args.Get(0).(domain.CommitmentID), args.Error(1)
}

func (m *MockBookingService) Release(ctx context.Context, companyID int64, id domain.CommitmentID) error {
	args := m.Called(ctx, companyID, id)
	return args.Error(0)
}

func (m *MockBookingService) Extend(ctx context.Context, companyID int64, id domain.CommitmentID, newEnd time.Time) (*domain.PriceQuote, error) {
	args := m.Called(ctx, companyID, id, newEnd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PriceQuote), args.Error(1)
}

func (m *MockBookingService) Reschedule(ctx context.Context, companyID int64, id domain.CommitmentID, r domain.DateRange) (*domain.PriceQuote, error) {
	args := m.Called(ctx, companyID, id, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PriceQuote), args.Error(1)
}

func (m *MockBookingService) SyncBookingStatus(ctx context.Context, companyID int64, bookingID int64, status domain.BookingStatus) error {
	args := m.Called(ctx, companyID, bookingID, status)
	return args.Error(0)
}

func (m *MockBookingService) ReleaseCancelled(ctx context.Context, companyID int64) (int, error) {
	args := m.Called(ctx, companyID)
	return args.Int(0), args.Error(1)
}

func (m *MockBookingService) PurgeReleased(ctx context.Context, companyID int64, before time.Time) (int64, error) {
	args := m.Called(ctx, companyID, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBookingService) Utilization(ctx context.Context, companyID int64, itemID int64, r domain.DateRange) (*availability.Utilization, error) {
	args := m.Called(ctx, companyID, itemID, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*availability.Utilization), args.Error(1)
}
