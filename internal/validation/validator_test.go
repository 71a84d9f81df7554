package validation

import (
	"testing"

	managererrors "github.com/sayfpack13/TrustQuery-sub002/internal/errors"
	"github.com/sayfpack13/TrustQuery-sub002/internal/model"
	"github.com/sayfpack13/TrustQuery-sub002/internal/sysinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMemoryBytes = 16 * 1024 * 1024 * 1024 // 16 GB

func newTestValidator(opts Options) *Validator {
	return NewValidator(sysinfo.Fixed(testMemoryBytes), opts)
}

func testNode(name string, httpPort, transportPort int) *model.NodeConfig {
	return &model.NodeConfig{
		Name:          name,
		Host:          "127.0.0.1",
		HTTPPort:      httpPort,
		TransportPort: transportPort,
		Cluster:       "test-cluster",
		DataPath:      "/var/lib/nodes/" + name + "/data",
		LogsPath:      "/var/lib/nodes/" + name + "/logs",
		Roles:         model.Roles{Master: true, Data: true},
		HeapSize:      "2g",
	}
}

func TestValidateCleanCandidate(t *testing.T) {
	v := newTestValidator(Options{})
	snapshot := []*model.NodeConfig{testNode("node-1", 9200, 9300)}

	result, err := v.Validate(testNode("node-2", 9210, 9310), ModeCreate, "", snapshot)
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Conflicts)
	assert.True(t, result.Suggestions.Empty())
}

func TestValidateDuplicateName(t *testing.T) {
	v := newTestValidator(Options{MaxNameCandidates: 3})
	snapshot := []*model.NodeConfig{
		testNode("node-1", 9200, 9300),
		testNode("node-1-2", 9210, 9310),
	}

	candidate := testNode("node-1", 9220, 9320)
	result, err := v.Validate(candidate, ModeCreate, "", snapshot)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.True(t, result.HasConflict(model.ConflictNodeName))
	// node-1-2 is registered, so the first free suffix is -3
	assert.Equal(t, []string{"node-1-3", "node-1-4", "node-1-5"}, result.Suggestions.NodeName)
}

func TestValidateEmptyName(t *testing.T) {
	v := newTestValidator(Options{})

	candidate := testNode("", 9200, 9300)
	result, err := v.Validate(candidate, ModeCreate, "", nil)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.True(t, result.HasConflict(model.ConflictNodeName))
	assert.Empty(t, result.Suggestions.NodeName)
}

func TestValidatePortsCollideAcrossFields(t *testing.T) {
	v := newTestValidator(Options{})
	// The candidate's http port matches an existing transport port and
	// vice versa: both fields share one port space.
	snapshot := []*model.NodeConfig{testNode("node-1", 9200, 9300)}

	candidate := testNode("node-2", 9300, 9200)
	result, err := v.Validate(candidate, ModeCreate, "", snapshot)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.True(t, result.HasConflict(model.ConflictHTTPPort))
	assert.True(t, result.HasConflict(model.ConflictTransportPort))

	// Suggested ports scan upward past every taken port and past each other
	assert.Equal(t, 9301, result.Suggestions.HTTPPort)
	assert.Equal(t, 9201, result.Suggestions.TransportPort)
}

func TestValidateOwnPortsEqual(t *testing.T) {
	v := newTestValidator(Options{})

	candidate := testNode("node-1", 9200, 9200)
	result, err := v.Validate(candidate, ModeCreate, "", nil)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.True(t, result.HasConflict(model.ConflictTransportPort))
	assert.NotEqual(t, candidate.HTTPPort, result.Suggestions.TransportPort)
}

func TestValidateZeroPortsScanFromBaseline(t *testing.T) {
	v := newTestValidator(Options{})
	snapshot := []*model.NodeConfig{testNode("node-1", 9200, 9300)}

	// Unset ports collide with each other (both zero); the suggestion
	// scan starts at the transport baseline and skips taken ports
	candidate := testNode("node-2", 0, 0)
	result, err := v.Validate(candidate, ModeCreate, "", snapshot)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.True(t, result.HasConflict(model.ConflictTransportPort))
	assert.Equal(t, 9301, result.Suggestions.TransportPort)
}

func TestValidateDuplicatePaths(t *testing.T) {
	v := newTestValidator(Options{})
	snapshot := []*model.NodeConfig{testNode("node-1", 9200, 9300)}

	candidate := testNode("node-2", 9210, 9310)
	candidate.DataPath = snapshot[0].DataPath
	candidate.LogsPath = snapshot[0].LogsPath
	result, err := v.Validate(candidate, ModeCreate, "", snapshot)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.True(t, result.HasConflict(model.ConflictDataPath))
	assert.True(t, result.HasConflict(model.ConflictLogsPath))
}

func TestValidateUpdateExcludesOriginal(t *testing.T) {
	v := newTestValidator(Options{})
	snapshot := []*model.NodeConfig{
		testNode("node-1", 9200, 9300),
		testNode("node-2", 9210, 9310),
	}

	// Re-submitting node-1's own values as an update of node-1 must not
	// self-conflict
	candidate := testNode("node-1", 9200, 9300)
	result, err := v.Validate(candidate, ModeUpdate, "node-1", snapshot)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	// The same candidate as a brand-new node conflicts on every axis
	result, err = v.Validate(candidate, ModeCreate, "", snapshot)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestValidateUpdateRenameOntoTakenName(t *testing.T) {
	v := newTestValidator(Options{})
	snapshot := []*model.NodeConfig{
		testNode("node-1", 9200, 9300),
		testNode("node-2", 9210, 9310),
	}

	candidate := testNode("node-2", 9200, 9300)
	result, err := v.Validate(candidate, ModeUpdate, "node-1", snapshot)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.True(t, result.HasConflict(model.ConflictNodeName))
}

func TestValidateHeapSizeMalformed(t *testing.T) {
	v := newTestValidator(Options{})

	for _, heap := range []string{"", "2", "2x", "g2", "2gb", "-2g"} {
		candidate := testNode("node-1", 9200, 9300)
		candidate.HeapSize = heap
		result, err := v.Validate(candidate, ModeCreate, "", nil)
		require.NoError(t, err)
		assert.True(t, result.HasConflict(model.ConflictHeapSize), "heap %q should be rejected", heap)
	}
}

func TestValidateHeapSizeCeiling(t *testing.T) {
	v := newTestValidator(Options{MaxHeapFraction: 0.75})

	// 12g is exactly 75% of the 16 GB test memory
	candidate := testNode("node-1", 9200, 9300)
	candidate.HeapSize = "12g"
	result, err := v.Validate(candidate, ModeCreate, "", nil)
	require.NoError(t, err)
	assert.False(t, result.HasConflict(model.ConflictHeapSize))

	candidate.HeapSize = "13g"
	result, err = v.Validate(candidate, ModeCreate, "", nil)
	require.NoError(t, err)
	assert.True(t, result.HasConflict(model.ConflictHeapSize))
}

func TestValidateHeapSizeUnits(t *testing.T) {
	cases := []struct {
		heap string
		gb   float64
	}{
		{"1048576k", 1},
		{"1024m", 1},
		{"1g", 1},
		{"1t", 1024},
	}
	for _, tc := range cases {
		gb, err := HeapSizeGigabytes(tc.heap)
		require.NoError(t, err)
		assert.InDelta(t, tc.gb, gb, 1e-9, "heap %q", tc.heap)
	}
}

func TestValidateRolePolicy(t *testing.T) {
	candidate := testNode("node-1", 9200, 9300)
	candidate.Roles = model.Roles{}

	// Default policy accepts a role-less node
	v := newTestValidator(Options{})
	result, err := v.Validate(candidate, ModeCreate, "", nil)
	require.NoError(t, err)
	assert.False(t, result.HasConflict(model.ConflictRoles))

	// With the policy enabled it is a conflict
	v = newTestValidator(Options{RequireRole: true})
	result, err = v.Validate(candidate, ModeCreate, "", nil)
	require.NoError(t, err)
	assert.True(t, result.HasConflict(model.ConflictRoles))
}

func TestFreePortExhaustion(t *testing.T) {
	v := newTestValidator(Options{PortSearchWindow: 3})

	taken := map[int]bool{9200: true, 9201: true, 9202: true}
	_, err := v.FreePort(9200, DefaultHTTPPortBaseline, taken)
	require.Error(t, err)
	assert.Equal(t, managererrors.ErrCodeResourceExhausted, managererrors.GetCode(err))
}

func TestFreePortStopsAtPortSpaceCeiling(t *testing.T) {
	v := newTestValidator(Options{PortSearchWindow: 100})

	taken := map[int]bool{65535: true}
	_, err := v.FreePort(65535, DefaultHTTPPortBaseline, taken)
	require.Error(t, err)
	assert.Equal(t, managererrors.ErrCodeResourceExhausted, managererrors.GetCode(err))
}
