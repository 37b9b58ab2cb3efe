package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lserr "linesrv/internal/errors"
	"linesrv/internal/metrics"
	"linesrv/util"
)

func TestRun_MetricsEndpoint(t *testing.T) {
	port, err := util.FindFreePort()
	require.NoError(t, err)
	metricsAddr := fmt.Sprintf("127.0.0.1:%d", port)

	opts := testOptions(t, metrics.New())
	opts.Address = "127.0.0.1:0"
	opts.MetricsAddress = metricsAddr

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(opts).Run(ctx) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + metricsAddr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, body, "linesrv_sessions_total")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRun_BadHostKey(t *testing.T) {
	opts := testOptions(t, nil)
	opts.Address = "127.0.0.1:0"
	opts.SSHAddress = "127.0.0.1:0"
	opts.SSHHostKey = filepath.Join(t.TempDir(), "missing")

	err := New(opts).Run(context.Background())
	var se *lserr.SSHError
	assert.ErrorAs(t, err, &se)
}

func TestRun_AddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	opts := testOptions(t, nil)
	opts.Address = ln.Addr().String()
	err = New(opts).Run(context.Background())
	var ne *lserr.NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "listen", ne.Op)
}
