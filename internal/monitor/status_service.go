package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// StatusService is the gRPC service carrying the status page. Get returns
// one Status as a google.protobuf.Struct with the JSON field names; Watch
// streams one every interval.
const StatusService = "depthcam.Status"

// StatusSource produces the status reported by StatusService. *Monitor
// implements it.
type StatusSource interface {
	Status() Status
}

type statusService struct {
	src      StatusSource
	interval time.Duration
}

func (s *statusService) Status() Status { return s.src.Status() }

var statusServiceDesc = grpc.ServiceDesc{
	ServiceName: StatusService,
	HandlerType: (*StatusSource)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: getStatusHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchStatusHandler, ServerStreams: true},
	},
	Metadata: "depthcam/status.proto",
}

// RegisterStatus adds StatusService backed by src. It must be called before
// Serve.
func (h *HealthServer) RegisterStatus(src StatusSource, interval time.Duration) error {
	if h.running.Load() {
		return fmt.Errorf("register %s: server already running", StatusService)
	}
	if interval <= 0 {
		return fmt.Errorf("register %s: interval must be positive", StatusService)
	}
	h.server.RegisterService(&statusServiceDesc, &statusService{src: src, interval: interval})
	return nil
}

// statusStruct converts st through its JSON form so the wire fields match
// /api/status.
func statusStruct(st Status) (*structpb.Struct, error) {
	b, err := json.Marshal(st)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "convert status: %v", err)
	}
	return out, nil
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	get := func(context.Context, any) (any, error) {
		return statusStruct(srv.(*statusService).Status())
	}
	if interceptor == nil {
		return get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + StatusService + "/Get"}
	return interceptor(ctx, in, info, get)
}

func watchStatusHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	s := srv.(*statusService)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		msg, err := statusStruct(s.Status())
		if err != nil {
			return err
		}
		if err := stream.SendMsg(msg); err != nil {
			return err
		}
		select {
		case <-stream.Context().Done():
			return nil
		case <-t.C:
		}
	}
}
