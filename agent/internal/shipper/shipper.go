package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/wattboard/wattboard/agent/internal/config"
	"github.com/wattboard/wattboard/pkg/meterpb"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second
)

// Shipper buffers readings and pushes them to wattboard-server in batches.
// Ship is non-blocking; when the buffer is full the oldest reading is evicted.
// Run must be called in a goroutine to drain the buffer and handle reconnection.
type Shipper struct {
	cfg    config.AgentConfig
	buf    chan *meterpb.Reading
	dialFn dialFunc

	// retry is the batch that failed on the last connection. Owned by Run.
	retry []*meterpb.Reading
}

// dialFunc opens a gRPC connection. Tests replace it to reach an in-process server.
type dialFunc func(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error)

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) *Shipper {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = config.DefaultBufferSize
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = config.DefaultMaxBatch
	}
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan *meterpb.Reading, cfg.BufferSize),
		dialFn: defaultDial,
	}
}

// Ship enqueues r. If the buffer is full the oldest reading is evicted.
func (s *Shipper) Ship(r *meterpb.Reading) {
	if r == nil {
		return
	}
	select {
	case s.buf <- r:
	default:
		select {
		case old := <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest reading",
				"building", old.BuildingID, "buffer_cap", cap(s.buf))
		default:
		}
		select {
		case s.buf <- r:
		default:
		}
	}
}

// Run drains the buffer, pushing batches to the server.
// It reconnects with exponential backoff when the connection is lost.
// Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, s.cfg.ServerEndpoint, s.cfg)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"endpoint", s.cfg.ServerEndpoint, "err", err, "retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		slog.Info("shipper: connected", "endpoint", s.cfg.ServerEndpoint)
		bo.reset()

		err = s.drain(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"endpoint", s.cfg.ServerEndpoint, "err", err, "retry_in", wait)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// drain sends batches until a send fails with a transient error or ctx is
// cancelled. The failed batch is kept and sent first on the next connection
// so readings of a building reach the server in order.
func (s *Shipper) drain(ctx context.Context, conn *grpc.ClientConn) error {
	client := meterpb.NewReadingServiceClient(conn)

	for {
		readings := s.retry
		s.retry = nil
		if readings == nil {
			select {
			case <-ctx.Done():
				return nil
			case first := <-s.buf:
				readings = collect(first, s.buf, s.cfg.MaxBatch)
			}
		}
		batch := newBatch(s.cfg.ID, readings)

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		resp, err := client.Push(s.withAuth(sendCtx), batch)
		cancel()

		if err != nil {
			if isPermanentError(err) {
				slog.Error("shipper: permanent send error, discarding batch",
					"readings", len(batch.Readings), "err", err)
				continue
			}
			s.retry = batch.Readings
			return fmt.Errorf("push: %w", err)
		}

		if !resp.Ok {
			slog.Warn("shipper: server rejected readings",
				"accepted", resp.Accepted, "rejected", resp.Rejected, "message", resp.Message)
		} else {
			slog.Debug("shipper: batch delivered", "readings", len(batch.Readings))
		}
	}
}

func (s *Shipper) withAuth(ctx context.Context) context.Context {
	a := s.cfg.ServerAuth
	if a.Mode != "apikey" || a.KeyEnv == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, a.EffectiveHeader(), a.Key())
}

// isPermanentError returns true for gRPC errors that will not succeed on retry.
func isPermanentError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

// defaultDial opens a gRPC connection to endpoint with auth configured from cfg.
func defaultDial(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.DialContext(ctx, endpoint, opts...) //nolint:staticcheck // DialContext kept for grpc < 1.63
}

// dialOptions builds the transport credentials for the server auth mode.
// The API key itself travels per call as metadata.
func dialOptions(cfg config.AgentConfig) ([]grpc.DialOption, error) {
	if cfg.ServerAuth.Mode == "mtls" {
		creds, err := buildMTLSCreds(cfg.ServerAuth)
		if err != nil {
			return nil, fmt.Errorf("shipper: build mtls creds: %w", err)
		}
		return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil
	}
	return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
}

// buildMTLSCreds loads the client certificate and optional CA.
func buildMTLSCreds(auth config.AuthConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if auth.CAFile != "" {
		caPEM, err := os.ReadFile(auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return credentials.NewTLS(tlsCfg), nil
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration with ±25% jitter and advances.
func (b *backoff) next() time.Duration {
	d := b.current
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
