package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func mustYAML(t *testing.T, doc string) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, yaml.Unmarshal([]byte(doc), &out))
	return out
}

func TestParseDocumentGeneric(t *testing.T) {
	raw := mustYAML(t, `
cmds:
  - uname: uname -a
timeout: 30
`)
	doc, rules, err := ParseDocument(raw)
	require.NoError(t, err)
	assert.Empty(t, rules)
	assert.Contains(t, doc.Generic, KeyCommands)
	assert.Contains(t, doc.Generic, "timeout")
	assert.Empty(t, doc.Matches)
	assert.Nil(t, doc.Priority)
}

func TestParseDocumentMatchers(t *testing.T) {
	raw := mustYAML(t, `
by_roles:
  compute:
    cmds:
      - df: df -h
  controller:
by_os_platform:
  ubuntu:
    scripts:
      - packages-ubuntu
default:
  logs:
    - /var/log/syslog
`)
	doc, _, err := ParseDocument(raw)
	require.NoError(t, err)

	require.Len(t, doc.Matches, 2)
	// Matches are ordered by attribute name.
	assert.Equal(t, "os_platform", doc.Matches[0].Attr)
	assert.Equal(t, "roles", doc.Matches[1].Attr)

	roles := doc.Matches[1]
	require.Contains(t, roles.Branches, "compute")
	assert.Contains(t, roles.Branches["compute"].Generic, KeyCommands)
	// Bare branch keys parse as empty scopes.
	require.Contains(t, roles.Branches, "controller")
	assert.Empty(t, roles.Branches["controller"].Generic)

	require.NotNil(t, doc.Default)
	assert.Contains(t, doc.Default, KeyLogs)
}

func TestParseDocumentPriority(t *testing.T) {
	raw := mustYAML(t, `
by_id:
  7:
    cmds:
      - special: echo special
  default:
    env_vars:
      VERBOSE: "1"
`)
	doc, _, err := ParseDocument(raw)
	require.NoError(t, err)

	require.NotNil(t, doc.Priority)
	assert.Contains(t, doc.Priority.ByID, "7")
	assert.Contains(t, doc.Priority.ByID["7"], KeyCommands)
	require.NotNil(t, doc.Priority.Default)
	assert.Contains(t, doc.Priority.Default, "env_vars")
}

func TestParseDocumentOnceRules(t *testing.T) {
	raw := mustYAML(t, `
once_by_roles:
  primary-controller:
    cmds:
      - crm: crm status
by_roles:
  compute:
    cmds:
      - df: df -h
`)
	doc, rules, err := ParseDocument(raw)
	require.NoError(t, err)

	require.Len(t, rules, 1)
	assert.Equal(t, "roles", rules[0].Attr)
	require.Contains(t, rules[0].Values, "primary-controller")
	assert.Contains(t, rules[0].Values["primary-controller"].Generic, KeyCommands)

	// Once sections do not leak into the per-host document.
	assert.NotContains(t, doc.Generic, "once_by_roles")
	require.Len(t, doc.Matches, 1)
	assert.Equal(t, "roles", doc.Matches[0].Attr)
}

func TestParseDocumentNestedPriority(t *testing.T) {
	raw := mustYAML(t, `
by_roles:
  compute:
    by_id:
      3:
        timeout: 120
`)
	doc, _, err := ParseDocument(raw)
	require.NoError(t, err)

	compute := doc.Matches[0].Branches["compute"]
	require.NotNil(t, compute.Priority)
	assert.Contains(t, compute.Priority.ByID, "3")
}

func TestParseDocumentRejectsScalarSection(t *testing.T) {
	raw := map[string]any{"by_roles": "not-a-map"}
	_, _, err := ParseDocument(raw)
	assert.Error(t, err)
}
