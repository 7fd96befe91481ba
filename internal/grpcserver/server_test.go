package grpcserver_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"jobmate/posting-service/internal/apperr"
	"jobmate/posting-service/internal/backend"
	"jobmate/posting-service/internal/draft"
	"jobmate/posting-service/internal/grpcserver"
	"jobmate/posting-service/internal/store"
	"jobmate/posting-service/internal/workflow"
)

type okSubmitter struct{}

func (okSubmitter) CreateJob(context.Context, draft.JobRequest, string) (*backend.Response, error) {
	return &backend.Response{Status: 201, Message: "Job created"}, nil
}

func (okSubmitter) UpdateJob(context.Context, string, draft.JobRequest, string) (*backend.Response, error) {
	return &backend.Response{Status: 200}, nil
}

// brokenStore fails every read with err.
type brokenStore struct {
	*store.Memory
	err error
}

func (b brokenStore) Get(context.Context, string) (*draft.Draft, error) { return nil, b.err }

func setup(t *testing.T) (*workflow.Service, *grpc.ClientConn) {
	t.Helper()
	return setupWith(t, store.NewMemory(0))
}

func setupWith(t *testing.T, st store.Store) (*workflow.Service, *grpc.ClientConn) {
	t.Helper()
	svc := workflow.NewService(st, okSubmitter{}, nil, nil, zap.NewNop(), workflow.Options{})

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	grpcserver.Register(gs, grpcserver.NewServer(svc))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return svc, conn
}

func call(ctx context.Context, conn *grpc.ClientConn, method, draftID string) (*structpb.Struct, error) {
	in, _ := structpb.NewStruct(map[string]any{"draftId": draftID})
	out := new(structpb.Struct)
	err := conn.Invoke(ctx, "/"+grpcserver.ServiceName+"/"+method, in, out)
	return out, err
}

func asUser(id string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "x-user-id", id)
}

// ── Tests ──────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	_, conn := setup(t)
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: grpcserver.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestGetReviewSubmit(t *testing.T) {
	svc, conn := setup(t)
	ctx := context.Background()
	u := draft.User{ID: "user-1", Email: "a@b.io"}
	d, err := svc.Start(ctx, u, []byte(`{"title":"T","companyId":"c-1"}`))
	require.NoError(t, err)

	got, err := call(asUser("user-1"), conn, "Get", d.ID)
	require.NoError(t, err)
	assert.Equal(t, "AUTHORING", got.Fields["stage"].GetStringValue())

	_, err = call(asUser("user-1"), conn, "Review", d.ID)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, _ = svc.Continue(ctx, u.ID, d.ID)
	_, _ = svc.Continue(ctx, u.ID, d.ID)

	rv, err := call(asUser("user-1"), conn, "Review", d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, rv.Fields["draftId"].GetStringValue())

	out, err := call(asUser("user-1"), conn, "Submit", d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Job created", out.Fields["message"].GetStringValue())

	_, err = call(asUser("user-1"), conn, "Get", d.ID)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestErrors(t *testing.T) {
	_, conn := setup(t)

	tests := []struct {
		name string
		ctx  context.Context
		id   string
		want codes.Code
	}{
		{"no metadata", context.Background(), "x", codes.Unauthenticated},
		{"no draft id", asUser("user-1"), "", codes.InvalidArgument},
		{"unknown draft", asUser("user-1"), "missing", codes.NotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := call(tc.ctx, conn, "Get", tc.id)
			assert.Equal(t, tc.want, status.Code(err))
		})
	}
}

func TestErrors_StoreFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"redis down", apperr.Unavailable("reading draft", errors.New("dial tcp: refused")), codes.Unavailable},
		{"bad input", apperr.InvalidInput("draft id is malformed", nil), codes.InvalidArgument},
		{"corrupt draft", apperr.Internal("decoding draft", nil), codes.Internal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, conn := setupWith(t, brokenStore{Memory: store.NewMemory(0), err: tc.err})
			_, err := call(asUser("user-1"), conn, "Get", "d-1")
			assert.Equal(t, tc.want, status.Code(err))
		})
	}
}
