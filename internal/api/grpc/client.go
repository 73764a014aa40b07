package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"ai-video-digest-service/internal/service/analysis"
)

// Client calls the analysis service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client on cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Analyze starts an analysis of target and returns its snapshot stream.
func (c *Client) Analyze(ctx context.Context, target string, opts ...grpc.CallOption) (*SnapshotStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], AnalyzeMethod, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(wrapperspb.String(target)); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &SnapshotStream{stream: stream}, nil
}

// SnapshotStream receives the snapshots of one analysis.
type SnapshotStream struct {
	stream grpc.ClientStream
}

// Recv returns the next snapshot, or io.EOF once the analysis finished.
func (s *SnapshotStream) Recv() (analysis.Snapshot, error) {
	msg := new(structpb.Struct)
	if err := s.stream.RecvMsg(msg); err != nil {
		return analysis.Snapshot{}, err
	}
	return FromStruct(msg)
}
