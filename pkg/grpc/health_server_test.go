package grpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthServer_FollowsDependencyChecks(t *testing.T) {
	var mongoDown atomic.Bool
	checks := map[string]Check{
		"mongodb": func(context.Context) error {
			if mongoDown.Load() {
				return errors.New("server selection timeout")
			}
			return nil
		},
	}
	s := NewHealthServer(&config.GRPCConfig{}, "storefront-api", zap.NewNop(), checks)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Close)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Eventually(t, func() bool {
		return check("") == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check("storefront-api"))

	mongoDown.Store(true)
	s.CheckNow(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check("storefront-api"))

	mongoDown.Store(false)
	s.CheckNow(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check("storefront-api"))
}

func TestHealthServer_CloseIsIdempotent(t *testing.T) {
	s := NewHealthServer(&config.GRPCConfig{}, "storefront-api", zap.NewNop(), nil)
	s.Close()
	s.Close()
}
