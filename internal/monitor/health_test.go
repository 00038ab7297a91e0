package monitor

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/timeutil"
)

type fakeSource struct {
	state atomic.Int32
	stats *camera.Stats
}

func newFakeSource(st camera.State) *fakeSource {
	s := &fakeSource{stats: camera.NewStats(timeutil.RealClock{})}
	s.state.Store(int32(st))
	return s
}

func (s *fakeSource) State() camera.State                    { return camera.State(s.state.Load()) }
func (s *fakeSource) ActiveProfiles() []camera.StreamProfile { return nil }
func (s *fakeSource) Stats() *camera.Stats                   { return s.stats }

func startHealth(t *testing.T) (*HealthServer, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	h := NewHealthServer()
	require.NoError(t, h.Serve(lis))
	t.Cleanup(h.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return h, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

// statusOf is check for use inside Eventually; errors read as UNKNOWN.
func statusOf(c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN
	}
	return resp.GetStatus()
}

func TestHealthServer_SetServing(t *testing.T) {
	h, c := startHealth(t)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, PipelineService))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, ""))

	h.SetServing(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, PipelineService))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ""))
}

func TestHealthServer_Watch(t *testing.T) {
	h, c := startHealth(t)
	src := newFakeSource(camera.Idle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Watch(ctx, src, time.Millisecond)
	}()

	assert.Eventually(t, func() bool {
		return statusOf(c, PipelineService) == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 5*time.Millisecond)

	src.state.Store(int32(camera.Streaming))
	assert.Eventually(t, func() bool {
		return statusOf(c, PipelineService) == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 5*time.Millisecond)

	src.state.Store(int32(camera.Closed))
	assert.Eventually(t, func() bool {
		return statusOf(c, PipelineService) == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestHealthServer_Lifecycle(t *testing.T) {
	h := NewHealthServer()
	lis := bufconn.Listen(1 << 10)
	require.NoError(t, h.Serve(lis))
	assert.Error(t, h.Serve(lis), "second Serve")
	h.Stop()
	h.Stop()
}

func TestHealthServer_UnknownService(t *testing.T) {
	_, c := startHealth(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: "nope"})
	assert.Error(t, err)
}
