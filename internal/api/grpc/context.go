package grpc

import (
	"context"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// CompanyIDHeader carries the tenant the auth interceptor resolved.
const CompanyIDHeader = "company-id"

// GetCompanyIDFromContext extracts the company ID from the gRPC metadata.
func GetCompanyIDFromContext(ctx context.Context) (int64, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return 0, status.Errorf(codes.Unauthenticated, "metadata is not provided")
	}

	ids := md.Get(CompanyIDHeader)
	if len(ids) == 0 {
		return 0, status.Errorf(codes.Unauthenticated, "company_id is not provided in metadata")
	}

	companyID, err := strconv.ParseInt(ids[0], 10, 64)
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "invalid company_id format: %v", err)
	}
	return companyID, nil
}
