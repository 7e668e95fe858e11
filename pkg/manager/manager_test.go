package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/fleet-probe/pkg/config"
	"github.com/NVIDIA/fleet-probe/pkg/errors"
	"github.com/NVIDIA/fleet-probe/pkg/inventory"
	"github.com/NVIDIA/fleet-probe/pkg/node"
	"github.com/NVIDIA/fleet-probe/pkg/transport"
)

type stubSource struct {
	records   []inventory.Record
	err       error
	releases  map[int]string
	cpRelease string
}

func (s *stubSource) Records(_ context.Context) ([]inventory.Record, error) {
	return s.records, s.err
}

func (s *stubSource) ReleaseMap(_ context.Context) (map[int]string, error) {
	return s.releases, nil
}

func (s *stubSource) ControlPlaneRelease(_ context.Context) (string, error) {
	if s.cpRelease == "" {
		return inventory.UnknownRelease, nil
	}
	return s.cpRelease, nil
}

type fakeTransport struct {
	mu       sync.Mutex
	calls    map[string]int
	failAddr string
}

func (f *fakeTransport) Run(_ context.Context, addr string, _ transport.Request) (*transport.Result, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[addr]++
	f.mu.Unlock()
	if addr == f.failAddr {
		return nil, fmt.Errorf("connect to %s: connection refused", addr)
	}
	return &transport.Result{Stdout: "Linux x\n"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.OutDir = t.TempDir()
	cfg.Actions = map[string]any{
		"cmds": []any{map[string]any{"uname": "uname -a"}},
	}
	return cfg
}

func testSource() *stubSource {
	return &stubSource{
		records: []inventory.Record{
			{ID: 1, Cluster: 1, Roles: inventory.Roles{"compute"}, Addr: "10.0.0.1", Online: true},
			{ID: 2, Cluster: 1, Roles: inventory.Roles{"controller"}, Addr: "10.0.0.2", Online: true},
		},
		releases: map[int]string{1: "9.2"},
	}
}

func TestNewPreparesNodes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Filters = map[string]any{"roles": "compute"}

	m, err := New(t.Context(), cfg, testSource(), &fakeTransport{}, testLogger())
	require.NoError(t, err)
	require.NotEmpty(t, m.RunID)

	nodes := m.Nodes()
	require.Len(t, nodes, 1)
	n := nodes[0]
	assert.Equal(t, 1, n.ID)
	assert.Equal(t, "9.2", n.Release)
	assert.Equal(t, m.OutDir, n.OutDir)
	assert.Equal(t, cfg.Timeout, n.Timeout)
	require.Len(t, n.Commands, 1)
	assert.Equal(t, "uname -a", n.Commands[0].Run)
}

func TestNewReleaseFallback(t *testing.T) {
	src := testSource()
	src.releases = nil

	m, err := New(t.Context(), testConfig(t), src, &fakeTransport{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, inventory.UnknownRelease, m.Nodes()[0].Release)
}

func TestNewAllFiltered(t *testing.T) {
	cfg := testConfig(t)
	cfg.Filters = map[string]any{"roles": "ceph-osd"}

	_, err := New(t.Context(), cfg, testSource(), &fakeTransport{}, testLogger())
	require.ErrorIs(t, err, node.ErrAllNodesFiltered)
}

func TestNewMissingActionsDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.ActionsDir = "/nonexistent/fleet-probe-actions"

	_, err := New(t.Context(), cfg, testSource(), &fakeTransport{}, testLogger())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfig, errors.CodeOf(err))
}

func TestNewInventoryError(t *testing.T) {
	src := &stubSource{err: fmt.Errorf("api server unavailable")}

	_, err := New(t.Context(), testConfig(t), src, &fakeTransport{}, testLogger())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInventory, errors.CodeOf(err))
}

func TestNewControlPlaneNode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Filters = map[string]any{"check_master": true}
	cfg.ControlPlaneAddr = "10.0.0.100"
	cfg.ClusterID = 1
	src := testSource()
	src.cpRelease = "9.3"

	m, err := New(t.Context(), cfg, src, &fakeTransport{}, testLogger())
	require.NoError(t, err)

	nodes := m.Nodes()
	require.Len(t, nodes, 3)
	cp := nodes[0]
	assert.Equal(t, 0, cp.ID)
	assert.Equal(t, "10.0.0.100", cp.Addr)
	assert.Equal(t, []string{"control-plane"}, cp.Roles)
	assert.Equal(t, "9.3", cp.Release)
	// The pseudo host resolves the same document as everyone else.
	require.Len(t, cp.Commands, 1)
}

func TestNewControlPlaneAddrAloneNotSynthesized(t *testing.T) {
	cfg := testConfig(t)
	cfg.ControlPlaneAddr = "10.0.0.100"

	m, err := New(t.Context(), cfg, testSource(), &fakeTransport{}, testLogger())
	require.NoError(t, err)
	require.Len(t, m.Nodes(), 2)
	assert.NotEqual(t, 0, m.Nodes()[0].ID)
}

func TestNewControlPlaneBypassesFilters(t *testing.T) {
	cfg := testConfig(t)
	cfg.Filters = map[string]any{"roles": "compute", "check_master": true}
	cfg.ControlPlaneAddr = "10.0.0.100"

	m, err := New(t.Context(), cfg, testSource(), &fakeTransport{}, testLogger())
	require.NoError(t, err)

	// The role clause drops the controller but never the pseudo host.
	nodes := m.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, 0, nodes[0].ID)
	assert.Equal(t, 1, nodes[1].ID)
}

func TestNewCheckMasterRequiresAddr(t *testing.T) {
	cfg := testConfig(t)
	cfg.Filters = map[string]any{"check_master": true}

	_, err := New(t.Context(), cfg, testSource(), &fakeTransport{}, testLogger())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfig, errors.CodeOf(err))

	cfg.ControlPlaneAddr = "10.0.0.100"
	_, err = New(t.Context(), cfg, testSource(), &fakeTransport{}, testLogger())
	require.NoError(t, err)
}

func TestNewDirTimestamp(t *testing.T) {
	cfg := testConfig(t)
	cfg.DirTimestamp = true

	m, err := New(t.Context(), cfg, testSource(), &fakeTransport{}, testLogger())
	require.NoError(t, err)
	assert.NotEqual(t, cfg.OutDir, m.OutDir)
	assert.Contains(t, m.OutDir, cfg.OutDir)
}
