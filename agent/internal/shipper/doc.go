// Package shipper pushes meter readings to wattboard-server via gRPC
// (ReadingService.Push unary RPC, JSON codec).
//
// Shipper.Ship() is non-blocking: readings are placed in an in-memory channel
// (default capacity 1000). When the buffer is full the oldest reading is
// evicted so the most recent consumption is always preserved.
//
// Shipper.Run() drains the buffer in batches of up to max_batch readings,
// reconnecting with truncated exponential backoff (1s→60s, ±25% jitter) on
// connection or send errors. A batch that failed transiently is resent first
// after reconnecting. Permanent gRPC errors (Unauthenticated, PermissionDenied,
// InvalidArgument) discard the batch rather than retrying.
//
// Auth: mTLS via credentials.NewTLS(), API key via gRPC metadata header,
// or insecure (plaintext) for local development.
package shipper
