package obs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracer_NoEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "", "auditorium", "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracer_LazyConnect(t *testing.T) {
	// grpc.NewClient does not dial until the first export.
	shutdown, err := InitTracer(context.Background(), "127.0.0.1:1", "auditorium", "test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
