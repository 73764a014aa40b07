// Package grpcapi streams analysis snapshots to gRPC clients.
//
// The service is described by hand instead of generated code: the request
// is a google.protobuf.StringValue holding the target and every response is
// the snapshot as a google.protobuf.Struct.
package grpcapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"ai-video-digest-service/internal/observability/logging"
	"ai-video-digest-service/internal/service/analysis"
)

const (
	ServiceName   = "videodigest.v1.AnalysisService"
	AnalyzeMethod = "/" + ServiceName + "/Analyze"
)

// AnalysisServiceServer is the server API of the analysis service.
type AnalysisServiceServer interface {
	// Analyze starts an analysis of the requested target and streams its
	// snapshots until the analysis finishes.
	Analyze(req *wrapperspb.StringValue, stream grpc.ServerStream) error
}

// ServiceDesc describes the analysis service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalysisServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Analyze",
			Handler:       analyzeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "videodigest/v1/analysis.proto",
}

func analyzeHandler(srv any, stream grpc.ServerStream) error {
	req := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(AnalysisServiceServer).Analyze(req, stream)
}

// Server implements AnalysisServiceServer on top of an Analyzer.
type Server struct {
	analyzer *analysis.Analyzer
	logger   zerolog.Logger
}

// Register registers the analysis service on g.
func Register(g *grpc.Server, analyzer *analysis.Analyzer) *Server {
	s := &Server{
		analyzer: analyzer,
		logger:   logging.WithComponent("grpc-analysis"),
	}
	g.RegisterService(&ServiceDesc, s)
	return s
}

// Analyze starts a new analysis and streams it. Snapshots are coalesced: a
// slow client receives the latest snapshot rather than every one, and
// always receives the final one. The stream ends with Aborted if another
// analysis supersedes this one. A client that disconnects does not stop
// the analysis.
func (s *Server) Analyze(req *wrapperspb.StringValue, stream grpc.ServerStream) error {
	ctx := stream.Context()
	w := newWatch()
	unsubscribe := s.analyzer.Subscribe(w)
	defer unsubscribe()

	reset, err := s.analyzer.Start(ctx, req.GetValue())
	if errors.Is(err, analysis.ErrInvalidTarget) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	logger := s.logger.With().Str("analysisId", reset.AnalysisID).Logger()
	logger.Info().Str("target", reset.Target).Msg("Streaming analysis")

	if err := s.send(stream, reset); err != nil {
		return err
	}
	lastSeq := reset.Seq
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("Client went away")
			return status.FromContextError(ctx.Err()).Err()
		case <-w.notify:
		}

		snap := w.latest()
		switch {
		case snap.Generation < reset.Generation:
			continue
		case snap.Generation > reset.Generation:
			return status.Error(codes.Aborted, "analysis superseded by a newer one")
		case snap.Seq <= lastSeq:
			continue
		}

		if err := s.send(stream, snap); err != nil {
			return err
		}
		lastSeq = snap.Seq
		if !snap.InFlight && snap.State.IsTerminal() {
			logger.Info().Str("state", snap.State.String()).Msg("Analysis stream complete")
			return nil
		}
	}
}

func (s *Server) send(stream grpc.ServerStream, snap analysis.Snapshot) error {
	msg, err := ToStruct(snap)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.SendMsg(msg)
}

// ToStruct converts a snapshot to its protobuf form.
func ToStruct(snap analysis.Snapshot) (*structpb.Struct, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return structpb.NewStruct(m)
}

// FromStruct converts a protobuf snapshot back.
func FromStruct(msg *structpb.Struct) (analysis.Snapshot, error) {
	var snap analysis.Snapshot
	data, err := json.Marshal(msg.AsMap())
	if err != nil {
		return snap, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

// watch is a sink that keeps only the latest snapshot.
type watch struct {
	mu     sync.Mutex
	snap   analysis.Snapshot
	notify chan struct{}
}

func newWatch() *watch {
	return &watch{notify: make(chan struct{}, 1)}
}

func (w *watch) Publish(s analysis.Snapshot) {
	w.mu.Lock()
	w.snap = s
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *watch) latest() analysis.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap
}
