package grpcsvc

import (
	"context"
	"encoding/base64"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	canteenv1 "github.com/vladislavdragonenkov/canteen/api/canteen/v1"
)

const adminMethodPrefix = "/" + canteenv1.AdminServiceName + "/"

// CredentialVerifier проверяет учётные данные администратора.
type CredentialVerifier interface {
	Verify(user, password string) error
}

// AdminAuthInterceptor требует Basic-учётные данные для методов AdminService.
// Остальные методы пропускаются без проверки.
func AdminAuthInterceptor(verifier CredentialVerifier, logger *log.Entry) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = log.New().WithField("component", "admin-auth")
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, adminMethodPrefix) {
			return handler(ctx, req)
		}

		user, password, ok := ParseBasicAuth(firstMetadataValue(ctx, canteenv1.AuthorizationHeader))
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "admin credentials are required")
		}
		if err := verifier.Verify(user, password); err != nil {
			logger.WithField("method", info.FullMethod).Warn("admin authentication failed")
			return nil, toStatus(logger, "authenticate", err)
		}
		return handler(ctx, req)
	}
}

// ParseBasicAuth разбирает значение заголовка "Basic base64(user:password)".
func ParseBasicAuth(header string) (user, password string, ok bool) {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return "", "", false
	}
	user, password, ok = strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", false
	}
	return user, password, true
}
