// Package mergerpc exposes the merge module as a gRPC service.
package mergerpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/banshee-data/cloudmerge/internal/cloud"
	"github.com/banshee-data/cloudmerge/internal/merge"
	"github.com/banshee-data/cloudmerge/internal/monitoring"
	"github.com/banshee-data/cloudmerge/internal/pose"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "cloudmerge.v1.Merger"

// MaxMessageSize bounds request and response size. A 64-beam sweep is
// around 2 MB encoded; merged multi-vehicle scenes are several times that.
const MaxMessageSize = 64 * 1024 * 1024

// MergerServer is the server API of the merge service.
type MergerServer interface {
	Merge(context.Context, *MergeRequest) (*CloudResponse, error)
	MergeFrames(context.Context, *MergeFramesRequest) (*CloudResponse, error)
	Execute(context.Context, *ExecuteRequest) (*CloudResponse, error)
}

// Ensure Server implements the gRPC interface.
var _ MergerServer = (*Server)(nil)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MergerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Merge", Handler: mergeHandler},
		{MethodName: "MergeFrames", Handler: mergeFramesHandler},
		{MethodName: "Execute", Handler: executeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cloudmerge/v1/merger.proto",
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func mergeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(MergeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MergerServer).Merge(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Merge")}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MergerServer).Merge(ctx, req.(*MergeRequest))
	})
}

func mergeFramesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(MergeFramesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MergerServer).MergeFrames(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("MergeFrames")}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MergerServer).MergeFrames(ctx, req.(*MergeFramesRequest))
	})
}

func executeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ExecuteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MergerServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Execute")}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MergerServer).Execute(ctx, req.(*ExecuteRequest))
	})
}

// RegisterService registers the merge service with a gRPC server.
func RegisterService(s grpc.ServiceRegistrar, srv MergerServer) {
	s.RegisterService(&serviceDesc, srv)
}

// ServerOptions returns the options the merge service expects.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.MaxRecvMsgSize(MaxMessageSize),
		grpc.MaxSendMsgSize(MaxMessageSize),
	}
}

// Server implements MergerServer over a merge.Module.
type Server struct {
	module *merge.Module
}

// NewServer creates a new merge server. A nil module uses an identity
// cached transform for Execute.
func NewServer(module *merge.Module) *Server {
	if module == nil {
		module = merge.NewModule()
	}
	return &Server{module: module}
}

// Merge implements the two-cloud merge with a caller-supplied transform.
func (s *Server) Merge(ctx context.Context, req *MergeRequest) (*CloudResponse, error) {
	start := time.Now()
	primary, err := decodeCloud("primary", req.Primary)
	if err != nil {
		return nil, err
	}
	secondary, err := decodeCloud("secondary", req.Secondary)
	if err != nil {
		return nil, err
	}
	if len(req.Rotation) != 16 {
		return nil, status.Errorf(codes.InvalidArgument, "rotation must have 16 values, got %d", len(req.Rotation))
	}
	if len(req.Translation) != 4 {
		return nil, status.Errorf(codes.InvalidArgument, "translation must have 4 values, got %d", len(req.Translation))
	}
	var r pose.Matrix4
	var t pose.Vector4
	copy(r[:], req.Rotation)
	copy(t[:], req.Translation)

	out := s.module.Forward(primary, secondary, r, t)
	monitoring.Debugf("[gRPC] Merge: primary=%d secondary=%d", len(primary), len(secondary))
	return response(out, start), nil
}

// MergeFrames derives each secondary's transform from the poses and merges.
func (s *Server) MergeFrames(ctx context.Context, req *MergeFramesRequest) (*CloudResponse, error) {
	start := time.Now()
	if req.Primary == nil {
		return nil, status.Error(codes.InvalidArgument, "primary frame is required")
	}
	primary, err := decodeFrame(req.Primary)
	if err != nil {
		return nil, err
	}
	secondaries := make([]merge.Frame, len(req.Secondaries))
	for i, fm := range req.Secondaries {
		if err := ctx.Err(); err != nil {
			return nil, status.FromContextError(err).Err()
		}
		if secondaries[i], err = decodeFrame(fm); err != nil {
			return nil, err
		}
	}

	out := s.module.MergeFrames(primary, secondaries...)
	monitoring.Debugf("[gRPC] MergeFrames: primary=%s vehicles=%d", primary.ID, len(secondaries)+1)
	return response(out, start), nil
}

// Execute maps one cloud through the module's cached transform.
func (s *Server) Execute(ctx context.Context, req *ExecuteRequest) (*CloudResponse, error) {
	start := time.Now()
	c, err := decodeCloud("cloud", req.Cloud)
	if err != nil {
		return nil, err
	}
	return response(s.module.Execute(c), start), nil
}

func decodeCloud(name string, b []byte) (cloud.PointCloud, error) {
	c, err := cloud.Decode(b)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%s: %v", name, err)
	}
	return c, nil
}

func decodeFrame(fm *FrameMessage) (merge.Frame, error) {
	if fm == nil {
		return merge.Frame{}, status.Error(codes.InvalidArgument, "frame is required")
	}
	if len(fm.Pose) != pose.RecordLen {
		return merge.Frame{}, status.Errorf(codes.InvalidArgument,
			"frame %q: pose must have %d values, got %d", fm.ID, pose.RecordLen, len(fm.Pose))
	}
	c, err := decodeCloud(fmt.Sprintf("frame %q", fm.ID), fm.Cloud)
	if err != nil {
		return merge.Frame{}, err
	}
	f := merge.Frame{ID: fm.ID, Cloud: c}
	copy(f.Pose[:], fm.Pose)
	return f, nil
}

func response(c cloud.PointCloud, start time.Time) *CloudResponse {
	return &CloudResponse{
		Cloud:     cloud.Encode(c),
		Points:    uint64(len(c)),
		ElapsedNs: uint64(time.Since(start)),
	}
}
