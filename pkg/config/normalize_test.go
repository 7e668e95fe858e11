package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeActionsDefaultBecomesGeneric(t *testing.T) {
	src := mustYAML(t, `
cmds:
  default:
    - uname: uname -a
`)
	dst := map[string]any{}
	NormalizeActions(src, dst)

	require.Contains(t, dst, KeyCommands)
	entries, ok := dst[KeyCommands].([]any)
	require.True(t, ok)
	assert.Len(t, entries, 1)
}

func TestNormalizeActionsMatcherSection(t *testing.T) {
	src := mustYAML(t, `
cmds:
  default:
    - uname: uname -a
  by_roles:
    compute:
      - df: df -h
scripts:
  by_roles:
    compute:
      - disk-check
`)
	dst := map[string]any{}
	NormalizeActions(src, dst)

	doc, _, err := ParseDocument(dst)
	require.NoError(t, err)

	assert.Contains(t, doc.Generic, KeyCommands)
	require.Len(t, doc.Matches, 1)
	assert.Equal(t, "roles", doc.Matches[0].Attr)

	compute := doc.Matches[0].Branches["compute"]
	require.NotNil(t, compute)
	// Contributions for distinct actions under the same branch merge.
	assert.Contains(t, compute.Generic, KeyCommands)
	assert.Contains(t, compute.Generic, KeyScripts)
}

func TestNormalizeActionsMatcherDefault(t *testing.T) {
	src := mustYAML(t, `
logs:
  by_os_platform:
    default:
      - /var/log/messages
    ubuntu:
      - /var/log/syslog
`)
	dst := map[string]any{}
	NormalizeActions(src, dst)

	doc, _, err := ParseDocument(dst)
	require.NoError(t, err)
	require.Len(t, doc.Matches, 1)

	// The matcher-level default lands inside the section as its default key.
	assert.NotNil(t, doc.Matches[0].Branches["ubuntu"])
	require.NotNil(t, doc.Matches[0].Default)
	assert.Contains(t, doc.Matches[0].Default, KeyLogs)
}

func TestNormalizeActionsOnceSection(t *testing.T) {
	src := mustYAML(t, `
cmds:
  once_by_roles:
    primary-controller:
      - crm: crm status
`)
	dst := map[string]any{}
	NormalizeActions(src, dst)

	_, rules, err := ParseDocument(dst)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "roles", rules[0].Attr)
	assert.Contains(t, rules[0].Values["primary-controller"].Generic, KeyCommands)
}

func TestNormalizeActionsLeafScalar(t *testing.T) {
	src := mustYAML(t, `
timeout:
  by_roles:
    compute: 120
`)
	dst := map[string]any{}
	NormalizeActions(src, dst)

	doc, _, err := ParseDocument(dst)
	require.NoError(t, err)
	require.Len(t, doc.Matches, 1)
	compute := doc.Matches[0].Branches["compute"]
	require.NotNil(t, compute)
	assert.Equal(t, 120, compute.Generic["timeout"])
}
