package node

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/fleet-probe/pkg/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestParseFilterSpec(t *testing.T) {
	spec, err := ParseFilterSpec(map[string]any{
		"roles":        []any{"compute", "ceph-osd"},
		"os_platform":  "ubuntu",
		"check_master": true,
		"online":       true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"compute", "ceph-osd"}, spec.Attrs["roles"])
	assert.Equal(t, []string{"ubuntu"}, spec.Attrs["os_platform"])
	assert.True(t, spec.CheckMaster)
	assert.True(t, spec.OnlineOnly)
}

func TestParseFilterSpecBadFlag(t *testing.T) {
	_, err := ParseFilterSpec(map[string]any{"online": "yes"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfig, errors.CodeOf(err))
}

func TestFilterAttrSemantics(t *testing.T) {
	compute := testNode(1, "compute")
	compute.OSPlatform = "ubuntu"
	storage := testNode(2, "ceph-osd")
	storage.OSPlatform = "centos"
	controller := testNode(3, "controller")
	controller.OSPlatform = "ubuntu"

	spec := &FilterSpec{Attrs: map[string][]string{
		"roles":       {"compute", "ceph-osd"},
		"os_platform": {"ubuntu"},
	}}
	kept, err := spec.Apply([]*Node{compute, storage, controller}, discardLogger())
	require.NoError(t, err)

	// Clauses AND across attributes, OR within one attribute's values.
	require.Len(t, kept, 1)
	assert.Equal(t, 1, kept[0].ID)
}

func TestFilterOnlineOnly(t *testing.T) {
	up := testNode(1, "compute")
	down := testNode(2, "compute")
	down.Online = false

	spec := &FilterSpec{OnlineOnly: true}
	kept, err := spec.Apply([]*Node{up, down}, discardLogger())
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, 1, kept[0].ID)
}

func TestFilterAllExcluded(t *testing.T) {
	n := testNode(1, "compute")
	spec := &FilterSpec{Attrs: map[string][]string{"roles": {"controller"}}}

	_, err := spec.Apply([]*Node{n}, discardLogger())
	require.ErrorIs(t, err, ErrAllNodesFiltered)
	assert.Equal(t, errors.ErrCodeFiltered, errors.CodeOf(err))
}

func TestFilterEmptyAcceptedSetSkipped(t *testing.T) {
	spec := &FilterSpec{Attrs: map[string][]string{
		"roles":       nil,
		"os_platform": {"ubuntu"},
	}}
	a := testNode(1, "compute")
	a.OSPlatform = "ubuntu"
	b := testNode(2, "controller")
	b.OSPlatform = "ubuntu"

	// A clause with no accepted values narrows nothing.
	kept, err := spec.Apply([]*Node{a, b}, discardLogger())
	require.NoError(t, err)
	assert.Len(t, kept, 2)
}

func TestFilterEmptyInventory(t *testing.T) {
	kept, err := (&FilterSpec{}).Apply(nil, discardLogger())
	require.NoError(t, err)
	assert.Empty(t, kept)
}

func TestFilterSortsByID(t *testing.T) {
	kept, err := (&FilterSpec{}).Apply([]*Node{testNode(3), testNode(1), testNode(2)}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, []int{kept[0].ID, kept[1].ID, kept[2].ID})
}
