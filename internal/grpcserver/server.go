// Package grpcserver exposes read and submit operations on posting drafts
// over gRPC for internal callers.
//
// It delegates all business logic to workflow.Service and handles only the
// gRPC transport concerns: metadata extraction, error mapping, and
// conversion between drafts and structpb messages.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"jobmate/posting-service/internal/apperr"
	"jobmate/posting-service/internal/workflow"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "posting.v1.Drafts"

// DraftsServer is the server API for posting.v1.Drafts. Requests carry a
// "draftId" field; responses mirror the HTTP JSON bodies.
type DraftsServer interface {
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Review(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes posting.v1.Drafts for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DraftsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: unary("Get", DraftsServer.Get)},
		{MethodName: "Review", Handler: unary("Review", DraftsServer.Review)},
		{MethodName: "Submit", Handler: unary("Submit", DraftsServer.Submit)},
	},
	Metadata: "posting/v1/drafts.proto",
}

type rpc func(DraftsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call rpc) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DraftsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(DraftsServer), ctx, req.(*structpb.Struct))
		})
	}
}

// Server implements DraftsServer.
type Server struct {
	svc *workflow.Service
}

// NewServer constructs a gRPC Server backed by the given workflow.Service.
func NewServer(svc *workflow.Service) *Server {
	return &Server{svc: svc}
}

// Register mounts the drafts service and the standard health service on gs.
func Register(gs *grpc.Server, srv *Server) *health.Server {
	gs.RegisterService(&ServiceDesc, srv)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return hs
}

// ─── RPC implementations ──────────────────────────────────────────────────────

// Get returns the caller's draft.
func (s *Server) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, id, err := caller(ctx, req)
	if err != nil {
		return nil, err
	}
	d, err := s.svc.Get(ctx, userID, id)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(d)
}

// Review returns the review projection of a draft in the review stage.
func (s *Server) Review(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, id, err := caller(ctx, req)
	if err != nil {
		return nil, err
	}
	rv, err := s.svc.Review(ctx, userID, id)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(rv)
}

// Submit sends a reviewed draft to the job backend. A rejected submit comes
// back as Unavailable with the outcome message as the status message.
func (s *Server) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, id, err := caller(ctx, req)
	if err != nil {
		return nil, err
	}
	out, err := s.svc.Submit(ctx, userID, id)
	if errors.Is(err, workflow.ErrSubmitFailed) && out != nil {
		return nil, status.Error(codes.Unavailable, out.Message)
	}
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(out)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func caller(ctx context.Context, req *structpb.Struct) (userID, draftID string, err error) {
	userID, err = userIDFromCtx(ctx)
	if err != nil {
		return "", "", err
	}
	draftID = req.GetFields()["draftId"].GetStringValue()
	if draftID == "" {
		return "", "", status.Error(codes.InvalidArgument, "draftId is required")
	}
	return userID, draftID, nil
}

// userIDFromCtx extracts the x-user-id value forwarded by the Gateway
// via gRPC metadata.
func userIDFromCtx(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("x-user-id")
	if len(vals) == 0 || vals[0] == "" {
		return "", status.Error(codes.Unauthenticated, "missing x-user-id metadata")
	}
	return vals[0], nil
}

// toGRPCError maps workflow errors to gRPC status errors.
func toGRPCError(err error) error {
	var ve *workflow.ValidationError
	var se *workflow.StageError
	switch {
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, workflow.ErrQuestionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, ve.Msg)
	case errors.As(err, &se):
		return status.Error(codes.FailedPrecondition, se.Error())
	case errors.Is(err, workflow.ErrSubmitInFlight),
		errors.Is(err, workflow.ErrAlreadySubmitted),
		errors.Is(err, workflow.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	case apperr.Is(err, apperr.ErrTypeInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case apperr.Is(err, apperr.ErrTypeUnavailable):
		return status.Error(codes.Unavailable, "service unavailable")
	}
	return status.Error(codes.Internal, "internal server error")
}

// toStruct converts a JSON-tagged value to a structpb.Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encoding response")
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Error(codes.Internal, "encoding response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encoding response")
	}
	return out, nil
}
