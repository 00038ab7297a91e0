package monitor

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/monitoring"
)

// PipelineService is the health service name reporting the pipeline.
const PipelineService = "depthcam.Pipeline"

// HealthServer serves grpc.health.v1 for a capture process. The overall
// status and PipelineService are SERVING while the watched pipeline is
// streaming.
type HealthServer struct {
	server *grpc.Server
	health *health.Server

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewHealthServer creates the server with every service NOT_SERVING.
func NewHealthServer() *HealthServer {
	h := &HealthServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(h.server, h.health)
	h.SetServing(false)
	return h
}

// SetServing updates the overall and pipeline status.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(PipelineService, status)
}

// Watch polls the state of src every interval until ctx is done and
// mirrors it into the health status.
func (h *HealthServer) Watch(ctx context.Context, src Source, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	last := camera.State(-1)
	for {
		if st := src.State(); st != last {
			h.SetServing(st == camera.Streaming)
			monitoring.Debugf("[health] pipeline %s", st)
			last = st
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Serve accepts connections on lis in the background.
func (h *HealthServer) Serve(lis net.Listener) error {
	if !h.running.CompareAndSwap(false, true) {
		return fmt.Errorf("health server already running")
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		monitoring.Logf("[health] gRPC server listening on %s", lis.Addr())
		if err := h.server.Serve(lis); err != nil && h.running.Load() {
			monitoring.Logf("[health] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop marks every service NOT_SERVING and gracefully stops the server.
func (h *HealthServer) Stop() {
	if !h.running.CompareAndSwap(true, false) {
		return
	}
	h.health.Shutdown()
	h.server.GracefulStop()
	h.wg.Wait()
	monitoring.Logf("[health] gRPC server stopped")
}
