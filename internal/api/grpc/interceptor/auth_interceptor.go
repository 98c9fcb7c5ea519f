package interceptor

import (
	"context"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	api "equiprent-backend/internal/api/grpc"
	"equiprent-backend/internal/config"
	"equiprent-backend/internal/logger"
	"equiprent-backend/internal/security"
)

type AuthInterceptor struct {
	tokenManager security.TokenManager
}

func NewAuthInterceptor(tm security.TokenManager) *AuthInterceptor {
	return &AuthInterceptor{tokenManager: tm}
}

// Unary returns a server interceptor function to authenticate unary RPCs and
// bind them to the token's company
func (i *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if config.GetSecurityLevel(info.FullMethod) == config.SecurityPublic {
			return handler(ctx, req)
		}

		token, err := i.extractToken(ctx)
		if err != nil {
			return nil, err
		}

		claims, err := i.tokenManager.ValidateToken(token)
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
		}
		if err := security.RequireAccess(claims); err != nil {
			return nil, status.Error(codes.PermissionDenied, err.Error())
		}

		// Set overwrites any tenant header the client sent itself.
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			md = metadata.New(nil)
		} else {
			md = md.Copy()
		}
		md.Set("user-id", strconv.FormatInt(claims.UserID, 10))
		md.Set(api.CompanyIDHeader, strconv.FormatInt(claims.CompanyID, 10))

		return handler(metadata.NewIncomingContext(ctx, md), req)
	}
}

func (i *AuthInterceptor) extractToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "metadata is not provided")
	}

	authHeader := md["authorization"]
	if len(authHeader) == 0 {
		return "", status.Error(codes.Unauthenticated, "authorization token is not provided")
	}

	token := authHeader[0]
	if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
		token = token[7:]
	}
	return token, nil
}

// ErrorUnary translates engine errors returned by handlers into gRPC statuses.
func ErrorUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Debug("RPC failed", "method", info.FullMethod, "error", err)
			return resp, api.StatusFromError(err)
		}
		return resp, nil
	}
}
