package mergerpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/banshee-data/cloudmerge/internal/cloud"
	"github.com/banshee-data/cloudmerge/internal/merge"
	"github.com/banshee-data/cloudmerge/internal/pose"
)

// Client calls a remote merge service.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// DialOptions returns the call options a connection to the merge service
// should be created with.
func DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(CodecName),
			grpc.MaxCallRecvMsgSize(MaxMessageSize),
			grpc.MaxCallSendMsgSize(MaxMessageSize),
		),
	}
}

func (c *Client) invoke(ctx context.Context, method string, req wireMessage) (cloud.PointCloud, error) {
	resp := new(CloudResponse)
	if err := c.conn.Invoke(ctx, fullMethod(method), req, resp, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, err
	}
	out, err := cloud.Decode(resp.Cloud)
	if err != nil {
		return nil, fmt.Errorf("%s response: %w", method, err)
	}
	return out, nil
}

// Merge sends primary, secondary and an explicit transform.
func (c *Client) Merge(ctx context.Context, primary, secondary cloud.PointCloud, r pose.Matrix4, t pose.Vector4) (cloud.PointCloud, error) {
	return c.invoke(ctx, "Merge", &MergeRequest{
		Primary:     cloud.Encode(primary),
		Secondary:   cloud.Encode(secondary),
		Rotation:    r[:],
		Translation: t[:],
	})
}

// MergeFrames sends frames with poses and lets the server derive transforms.
func (c *Client) MergeFrames(ctx context.Context, primary merge.Frame, secondaries ...merge.Frame) (cloud.PointCloud, error) {
	req := &MergeFramesRequest{Primary: frameMessage(primary)}
	for _, s := range secondaries {
		req.Secondaries = append(req.Secondaries, frameMessage(s))
	}
	return c.invoke(ctx, "MergeFrames", req)
}

// Execute maps one cloud through the server's cached transform.
func (c *Client) Execute(ctx context.Context, in cloud.PointCloud) (cloud.PointCloud, error) {
	return c.invoke(ctx, "Execute", &ExecuteRequest{Cloud: cloud.Encode(in)})
}

func frameMessage(f merge.Frame) *FrameMessage {
	p := f.Pose
	return &FrameMessage{ID: f.ID, Pose: p[:], Cloud: cloud.Encode(f.Cloud)}
}
