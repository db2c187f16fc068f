package auth

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// enabled reports whether API key checks apply. Any mode other than
// "apikey", or an empty expected key, disables them.
func enabled(mode, key string) bool { return mode == "apikey" && key != "" }

func matches(presented, key string) bool {
	return subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1
}

// APIKeyInterceptor guards the agent-facing gRPC service. Every unary call
// must carry key under the metadata key header (case-insensitive); anything
// else fails with codes.Unauthenticated before the handler runs.
func APIKeyInterceptor(mode, header, key string) grpc.UnaryServerInterceptor {
	header = strings.ToLower(header)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !enabled(mode, key) {
			return handler(ctx, req)
		}
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(header); len(vals) > 0 && matches(vals[0], key) {
				return handler(ctx, req)
			}
		}

		addr := "unknown"
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			addr = p.Addr.String()
		}
		slog.Warn("auth: agent call denied", "method", info.FullMethod, "peer", addr)
		return nil, status.Error(codes.Unauthenticated, "invalid api key")
	}
}
