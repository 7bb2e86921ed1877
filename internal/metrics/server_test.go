package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goran-ethernal/ComplianceScanner/internal/logger"
	"github.com/goran-ethernal/ComplianceScanner/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestServer_Handler(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	cfg.ApplyDefaults()

	LastScannedBlockSet("usdt", 4634758)
	ABICacheHitInc()

	srv := httptest.NewServer(NewServer(cfg, logger.NewNopLogger()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "OK", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), `compliancescanner_last_scanned_block{job="usdt"}`)
	require.Contains(t, string(body), `compliancescanner_abi_cache_lookups_total{result="hit"}`)
}

func TestServer_StartStop(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true, ListenAddress: "127.0.0.1:0"}
	cfg.ApplyDefaults()

	s := NewServer(cfg, logger.NewNopLogger())
	require.NoError(t, s.Start(context.Background()))
	require.NotEmpty(t, s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
}

func TestServer_Disabled(t *testing.T) {
	s := NewServer(&config.MetricsConfig{}, logger.NewNopLogger())
	require.NoError(t, s.Start(context.Background()))
	require.Empty(t, s.Addr())
	require.NoError(t, s.Stop(context.Background()))
}
