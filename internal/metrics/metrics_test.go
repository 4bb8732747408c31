// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsASingleton(t *testing.T) {
	require.Same(t, Default(), Default())
}

func TestCountersRecordObservations(t *testing.T) {
	m := Default()
	m.RequestsTotal.WithLabelValues("ping").Inc()
	require.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("ping")))

	m.CacheHitsTotal.WithLabelValues("search").Inc()
	m.CacheHitsTotal.WithLabelValues("search").Inc()
	require.Equal(t, float64(2), testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("search")))
}

func TestServeExposesMetricsEndpoint(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "metrics.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)

	go Serve(ln)
	t.Cleanup(func() { ln.Close() })

	conn, err := net.DialTimeout("unix", sock, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /metrics HTTP/1.1\r\nHost: localhost\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	body, err := io.ReadAll(conn)
	require.NoError(t, err)
	require.Contains(t, string(body), "200")
}
