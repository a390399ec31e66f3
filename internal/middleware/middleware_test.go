package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/kriskindle/internal/metrics"
	"github.com/mmynk/kriskindle/pkg/api"
	"github.com/mmynk/kriskindle/pkg/api/apiconnect"
)

type stubGroupService struct {
	apiconnect.UnimplementedGroupServiceHandler
}

func (stubGroupService) ListGroups(context.Context, *connect.Request[api.ListGroupsRequest]) (*connect.Response[api.ListGroupsResponse], error) {
	return connect.NewResponse(&api.ListGroupsResponse{}), nil
}

func (stubGroupService) GetGroup(context.Context, *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error) {
	return nil, connect.NewError(connect.CodeNotFound, errors.New("group not found"))
}

func newTestClient(t *testing.T, interceptors ...connect.Interceptor) apiconnect.GroupServiceClient {
	t.Helper()
	path, handler := apiconnect.NewGroupServiceHandler(stubGroupService{}, connect.WithInterceptors(interceptors...))
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return apiconnect.NewGroupServiceClient(http.DefaultClient, server.URL)
}

func TestLoggingInterceptor(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := newTestClient(t, LoggingInterceptor(logger))

	_, err := client.ListGroups(context.Background(), connect.NewRequest(&api.ListGroupsRequest{}))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "RPC ok")
	assert.Contains(t, buf.String(), apiconnect.GroupServiceListGroupsProcedure)

	buf.Reset()
	_, err = client.GetGroup(context.Background(), connect.NewRequest(&api.GetGroupRequest{GroupID: "x"}))
	require.Error(t, err)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "code=not_found")
}

func TestRateLimiterInterceptor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	limiter := NewRateLimiter(0.001, 2, m)
	client := newTestClient(t, limiter.Interceptor())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := client.ListGroups(ctx, connect.NewRequest(&api.ListGroupsRequest{}))
		require.NoError(t, err)
	}

	_, err := client.ListGroups(ctx, connect.NewRequest(&api.ListGroupsRequest{}))
	assert.Equal(t, connect.CodeResourceExhausted, connect.CodeOf(err))

	expected := `
# HELP kriskindle_rate_limited_total Requests rejected by the rate limiter.
# TYPE kriskindle_rate_limited_total counter
kriskindle_rate_limited_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "kriskindle_rate_limited_total"))
}

func TestRateLimiterPerPeer(t *testing.T) {
	limiter := NewRateLimiter(1, 1, nil)
	clock := time.Unix(1000, 0)
	limiter.now = func() time.Time { return clock }

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"), "peers have separate buckets")

	clock = clock.Add(time.Second)
	assert.True(t, limiter.Allow("10.0.0.1"), "bucket refills over time")
}

func TestRateLimiterSweepsIdlePeers(t *testing.T) {
	limiter := NewRateLimiter(1, 1, nil)
	clock := time.Unix(1000, 0)
	limiter.now = func() time.Time { return clock }

	limiter.Allow("10.0.0.1")
	clock = clock.Add(limiter.idleTTL + time.Second)
	limiter.Allow("10.0.0.2")

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.Len(t, limiter.peers, 1)
	assert.Contains(t, limiter.peers, "10.0.0.2")
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(0, 0, nil)
	for i := 0; i < 100; i++ {
		require.True(t, limiter.Allow("peer"))
	}
}

func TestPeerHost(t *testing.T) {
	assert.Equal(t, "127.0.0.1", peerHost("127.0.0.1:5555"))
	assert.Equal(t, "pipe", peerHost("pipe"))
}
