package server

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ftl/m2mb-atp/atp"
	"github.com/ftl/m2mb-atp/com"
)

const waitTimeout = 2 * time.Second

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setup(t *testing.T, maxConnections int) (*atp.ATP, string, context.CancelFunc, chan error) {
	t.Helper()
	a, err := atp.New()
	require.NoError(t, err)
	require.NoError(t, a.RegisterFunc("#PING", func(instance *atp.Instance, event atp.Event) {
		if event.Kind == atp.CallbackInd {
			instance.MsgOut("#PING: pong")
			instance.Release(event.Request, atp.ResultOK)
		}
	}))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	server := New(a, nil, maxConnections)
	go func() {
		done <- server.Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		a.Close()
	})
	return a, listener.Addr().String(), cancel, done
}

func dial(t *testing.T, address string) *com.COM {
	t.Helper()
	conn, err := net.Dial("tcp", address)
	require.NoError(t, err)
	client := com.New(conn)
	t.Cleanup(func() {
		conn.Close()
		<-client.Done()
	})
	return client
}

func TestServe(t *testing.T) {
	a, address, _, _ := setup(t, 2)
	first := dial(t, address)
	second := dial(t, address)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	for _, client := range []*com.COM{first, second} {
		actual, err := client.AT(ctx, "AT#PING")
		require.NoError(t, err)
		assert.Equal(t, []string{"#PING: pong"}, actual)
	}

	_, used := a.Instance(1)
	assert.True(t, used)
	_, used = a.Instance(2)
	assert.True(t, used)
	_, used = a.Instance(SerialInstance)
	assert.False(t, used)
}

func TestRejectsConnectionsAboveLimit(t *testing.T) {
	_, address, _, _ := setup(t, 1)
	client := dial(t, address)
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err := client.AT(ctx, "AT")
	require.NoError(t, err)

	conn, err := net.Dial("tcp", address)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(waitTimeout))
	reader := bufio.NewReader(conn)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimSpace(line))
		}
		if err != nil {
			break
		}
	}
	assert.Equal(t, []string{"NO CARRIER"}, lines)
}

func TestStopsWithContext(t *testing.T) {
	a, address, cancel, done := setup(t, 1)
	client := dial(t, address)
	ctx, cancelAT := context.WithTimeout(context.Background(), waitTimeout)
	defer cancelAT()
	_, err := client.AT(ctx, "AT")
	require.NoError(t, err)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("server did not stop")
	}
	select {
	case <-client.Done():
	case <-time.After(waitTimeout):
		t.Fatal("connection not closed")
	}
	assert.Eventually(t, func() bool {
		_, used := a.Instance(1)
		return !used
	}, waitTimeout, 5*time.Millisecond)
	done <- nil
}

func TestServeDevice(t *testing.T) {
	a, err := atp.New()
	require.NoError(t, err)
	defer a.Close()
	server := New(a, nil, 0)
	dte, dce := net.Pipe()
	client := com.New(dte)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.ServeDevice(ctx, dce)
	}()

	atCtx, cancelAT := context.WithTimeout(context.Background(), waitTimeout)
	defer cancelAT()
	_, err = client.AT(atCtx, "AT")
	require.NoError(t, err)

	cancel()
	assert.NoError(t, <-done)
	dte.Close()
	<-client.Done()
}
