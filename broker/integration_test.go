//go:build integration

package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tr-sdv-sandbox/vsslink/broker"
	"github.com/tr-sdv-sandbox/vsslink/brokertest"
)

func TestConn_ConnectAndClose(t *testing.T) {
	srv := brokertest.StartNATS(t)

	assert.True(t, srv.Conn.IsConnected())
	assert.Equal(t, broker.StatusConnected, srv.Conn.Status())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Conn.Close(ctx))
	assert.Equal(t, broker.StatusDisconnected, srv.Conn.Status())

	// Second close is a no-op.
	assert.NoError(t, srv.Conn.Close(ctx))
}

func TestConn_ConnectBadURL(t *testing.T) {
	conn, err := broker.NewConn("nats://127.0.0.1:1",
		broker.WithConnectTimeout(time.Second),
		broker.WithMaxReconnects(0),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	assert.Error(t, conn.Connect(ctx))
	assert.False(t, conn.IsConnected())
}

func TestConn_WaitForConnection(t *testing.T) {
	srv := brokertest.StartNATS(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Conn.WaitForConnection(ctx))
}
