package jobs

import (
	"context"

	"equiprent-backend/internal/logger"
)

// ReleaseCancelledCommitments releases commitments whose booking was
// cancelled without the engine being told.
func (jr *JobRunner) ReleaseCancelledCommitments() {
	jr.runWithRecovery("ReleaseCancelledCommitments", func() {
		ctx := context.Background()

		companies, err := jr.tenants.CompanyIDs(ctx)
		if err != nil {
			logger.Error("Failed to list companies", "error", err)
			return
		}

		total := 0
		for _, companyID := range companies {
			n, err := jr.booking.ReleaseCancelled(ctx, companyID)
			total += n
			if err != nil {
				logger.Error("Failed to release cancelled commitments for company",
					"company_id", companyID,
					"released", n,
					"error", err)
				continue
			}
			if n > 0 {
				logger.WithCompany(companyID).Info("Released cancelled commitments", "count", n)
			}
		}

		logger.Info("Released cancelled commitments", "companies", len(companies), "count", total)
	})
}

// PurgeReleasedCommitments deletes commitments released longer ago than the
// configured retention.
func (jr *JobRunner) PurgeReleasedCommitments() {
	jr.runWithRecovery("PurgeReleasedCommitments", func() {
		ctx := context.Background()
		before := jr.now().Add(-jr.config.ReleasedRetention())

		companies, err := jr.tenants.CompanyIDs(ctx)
		if err != nil {
			logger.Error("Failed to list companies", "error", err)
			return
		}

		var total int64
		for _, companyID := range companies {
			n, err := jr.booking.PurgeReleased(ctx, companyID, before)
			if err != nil {
				logger.Error("Failed to purge released commitments for company",
					"company_id", companyID,
					"error", err)
				continue
			}
			total += n
		}

		logger.Info("Purged released commitments", "before", before, "count", total)
	})
}
