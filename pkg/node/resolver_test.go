package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/NVIDIA/fleet-probe/pkg/config"
)

func parseDoc(t *testing.T, src string) *config.Document {
	t.Helper()
	raw := map[string]any{}
	require.NoError(t, yaml.Unmarshal([]byte(src), &raw))
	doc, _, err := config.ParseDocument(raw)
	require.NoError(t, err)
	return doc
}

func testNode(id int, roles ...string) *Node {
	return &Node{ID: id, Cluster: 1, Addr: "10.0.0.1", Roles: roles, Online: true}
}

func TestResolveGenericAndBranchAppend(t *testing.T) {
	doc := parseDoc(t, `
cmds:
  - uname: uname -a
timeout: 30
by_roles:
  compute:
    cmds:
      - df: df -h
`)
	n := testNode(1, "compute")
	require.NoError(t, NewResolver().Resolve(n, doc, true))

	assert.Equal(t, []Command{
		{Label: "uname", Run: "uname -a"},
		{Label: "df", Run: "df -h"},
	}, n.Commands)
	assert.Equal(t, 30, n.Timeout)
}

func TestResolveUnmatchedBranchIgnored(t *testing.T) {
	doc := parseDoc(t, `
by_roles:
  compute:
    cmds:
      - df: df -h
`)
	n := testNode(1, "controller")
	require.NoError(t, NewResolver().Resolve(n, doc, true))
	assert.Empty(t, n.Commands)
}

func TestResolveNonResettableReplacesDefault(t *testing.T) {
	doc := parseDoc(t, `
logs:
  - /var/log/syslog
by_roles:
  compute:
    logs:
      - /var/log/compute.log
  ceph-osd:
    logs:
      - /var/log/ceph.log
`)
	n := testNode(1, "compute", "ceph-osd")
	require.NoError(t, NewResolver().Resolve(n, doc, true))

	// The first matched contribution replaces the generic default, the
	// second appends.
	assert.Equal(t, []string{"/var/log/compute.log", "/var/log/ceph.log"}, n.Logs)
}

func TestResolveResettableIdempotent(t *testing.T) {
	doc := parseDoc(t, `
cmds:
  - uname: uname -a
by_roles:
  compute:
    cmds:
      - df: df -h
`)
	n := testNode(1, "compute")
	r := NewResolver()

	require.NoError(t, r.Resolve(n, doc, true))
	first := append([]Command(nil), n.Commands...)
	require.NoError(t, r.Resolve(n, doc, true))
	assert.Equal(t, first, n.Commands)
}

func TestResolveAccumulatesWithoutReset(t *testing.T) {
	doc := parseDoc(t, `
cmds:
  - crm: crm status
`)
	n := testNode(1, "controller")
	n.Commands = []Command{{Label: "uname", Run: "uname -a"}}
	require.NoError(t, NewResolver().Resolve(n, doc, false))

	assert.Len(t, n.Commands, 2)
	assert.Equal(t, "crm", n.Commands[1].Label)
}

func TestResolvePriorityWins(t *testing.T) {
	doc := parseDoc(t, `
by_roles:
  compute:
    cmds:
      - df: df -h
by_id:
  5:
    cmds:
      - special: echo special
  default:
    env_vars:
      TRACE: "1"
`)
	n := testNode(5, "compute")
	require.NoError(t, NewResolver().Resolve(n, doc, true))

	assert.Equal(t, []Command{{Label: "special", Run: "echo special"}}, n.Commands)
	assert.Equal(t, map[string]string{"TRACE": "1"}, n.EnvVars)
}

func TestResolvePriorityAbsentID(t *testing.T) {
	doc := parseDoc(t, `
by_roles:
  compute:
    cmds:
      - df: df -h
by_id:
  5:
    cmds:
      - special: echo special
  default:
    env_vars:
      TRACE: "1"
`)
	n := testNode(9, "compute")
	require.NoError(t, NewResolver().Resolve(n, doc, true))

	assert.Equal(t, []Command{{Label: "df", Run: "df -h"}}, n.Commands)
	assert.Nil(t, n.EnvVars)
}

func TestResolveMatcherDefault(t *testing.T) {
	doc := parseDoc(t, `
by_roles:
  default:
    files:
      - /etc/hosts
  compute:
    files:
      - /etc/fstab
`)
	n := testNode(1, "compute")
	require.NoError(t, NewResolver().Resolve(n, doc, true))
	assert.Equal(t, []string{"/etc/hosts", "/etc/fstab"}, n.Files)

	// The section default applies only alongside a matching branch.
	other := testNode(2, "controller")
	require.NoError(t, NewResolver().Resolve(other, doc, true))
	assert.Empty(t, other.Files)
}

func TestResolveScopeDefault(t *testing.T) {
	doc := parseDoc(t, `
default:
  logs:
    - /var/log/syslog
by_roles:
  compute:
`)
	n := testNode(1, "compute")
	require.NoError(t, NewResolver().Resolve(n, doc, true))
	assert.Equal(t, []string{"/var/log/syslog"}, n.Logs)
}

func TestResolveExtraAttributeMatch(t *testing.T) {
	doc := parseDoc(t, `
flavor: big
by_flavor:
  big:
    cmds:
      - free: free -m
`)
	n := testNode(1, "compute")
	require.NoError(t, NewResolver().Resolve(n, doc, true))

	assert.Equal(t, "big", n.Extra["flavor"])
	assert.Equal(t, []Command{{Label: "free", Run: "free -m"}}, n.Commands)
}

func TestResolveExecutionOptions(t *testing.T) {
	doc := parseDoc(t, `
timeout: 120
prefix: nice -n 19
ssh_opts:
  - -oConnectTimeout=5
env_vars:
  LANG: C
outputs_timestamp: true
ok_codes:
  - 0
  - 124
`)
	n := testNode(1)
	require.NoError(t, NewResolver().Resolve(n, doc, true))

	assert.Equal(t, 120, n.Timeout)
	assert.Equal(t, "nice -n 19", n.Prefix)
	assert.Equal(t, []string{"-oConnectTimeout=5"}, n.SSHOpts)
	assert.Equal(t, map[string]string{"LANG": "C"}, n.EnvVars)
	assert.True(t, n.OutputsTimestamp)
	assert.Equal(t, []int{0, 124}, n.OKCodes)
}

func TestResolveConfigurableResettable(t *testing.T) {
	doc := parseDoc(t, `
logs:
  - /var/log/syslog
by_roles:
  compute:
    logs:
      - /var/log/compute.log
`)
	n := testNode(1, "compute")
	r := &Resolver{Resettable: map[string]bool{config.KeyLogs: true}}
	require.NoError(t, r.Resolve(n, doc, true))

	// With logs resettable, matched contributions append to the default
	// instead of replacing it.
	assert.Equal(t, []string{"/var/log/syslog", "/var/log/compute.log"}, n.Logs)
}

func TestResolveBadCommandEntry(t *testing.T) {
	doc := parseDoc(t, `
cmds:
  - just-a-string
`)
	n := testNode(1)
	assert.Error(t, NewResolver().Resolve(n, doc, true))
}

func TestResolvePuts(t *testing.T) {
	doc := parseDoc(t, `
put:
  - ["/local/tool.sh", "/tmp/tool.sh"]
  - src: /local/cfg
    dst: /etc/cfg
`)
	n := testNode(1)
	require.NoError(t, NewResolver().Resolve(n, doc, true))

	assert.Equal(t, []PushSpec{
		{Src: "/local/tool.sh", Dst: "/tmp/tool.sh"},
		{Src: "/local/cfg", Dst: "/etc/cfg"},
	}, n.Puts)
}
