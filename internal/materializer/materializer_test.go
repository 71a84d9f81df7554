package materializer

import (
	"os"
	"path/filepath"
	"testing"

	managererrors "github.com/sayfpack13/TrustQuery-sub002/internal/errors"
	"github.com/sayfpack13/TrustQuery-sub002/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func newTestNode(t *testing.T, basePath, name string) *model.NodeConfig {
	t.Helper()
	_, dataPath, logsPath := Layout(basePath, name)
	return &model.NodeConfig{
		Name:          name,
		Host:          "127.0.0.1",
		HTTPPort:      9200,
		TransportPort: 9300,
		Cluster:       "test-cluster",
		DataPath:      dataPath,
		LogsPath:      logsPath,
		Roles:         model.Roles{Master: true, Data: true},
		HeapSize:      "1g",
	}
}

func readNodeFile(t *testing.T, node *model.NodeConfig) nodeFile {
	t.Helper()
	data, err := os.ReadFile(node.ConfigFilePath())
	require.NoError(t, err)
	var f nodeFile
	require.NoError(t, yaml.Unmarshal(data, &f))
	return f
}

func TestCreateMaterializesLayout(t *testing.T) {
	m := New(zap.NewNop())
	base := t.TempDir()
	node := newTestNode(t, base, "node-1")

	require.NoError(t, m.Create(node))

	for _, dir := range []string{node.DataPath, node.LogsPath, filepath.Join(node.HomePath(), "config")} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	f := readNodeFile(t, node)
	assert.Equal(t, "node-1", f.Node.Name)
	assert.Equal(t, "test-cluster", f.Cluster.Name)
	assert.Equal(t, 9200, f.HTTP.Port)
	assert.Equal(t, 9300, f.Transport.Port)
	assert.Equal(t, node.DataPath, f.Path.Data)
	assert.Equal(t, "1g", f.JVM.HeapSize)
	assert.True(t, f.Node.Master)
	assert.False(t, f.Node.Ingest)
}

func TestCreateRefusesOccupiedHome(t *testing.T) {
	m := New(zap.NewNop())
	base := t.TempDir()
	node := newTestNode(t, base, "node-1")

	// An occupied home belongs to someone else
	require.NoError(t, os.MkdirAll(node.HomePath(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(node.HomePath(), "stranger.txt"), []byte("x"), 0o644))

	err := m.Create(node)
	require.Error(t, err)
	assert.Equal(t, managererrors.ErrCodeFilesystem, managererrors.GetCode(err))

	// The occupant survives
	_, statErr := os.Stat(filepath.Join(node.HomePath(), "stranger.txt"))
	assert.NoError(t, statErr)
}

func TestCreateAcceptsEmptyHome(t *testing.T) {
	m := New(zap.NewNop())
	base := t.TempDir()
	node := newTestNode(t, base, "node-1")

	require.NoError(t, os.MkdirAll(node.HomePath(), 0o755))
	require.NoError(t, m.Create(node))
}

func TestMovePreservingData(t *testing.T) {
	m := New(zap.NewNop())
	oldBase := t.TempDir()
	newBase := t.TempDir()
	node := newTestNode(t, oldBase, "node-1")

	require.NoError(t, m.Create(node))
	marker := filepath.Join(node.DataPath, "segment-0001")
	require.NoError(t, os.WriteFile(marker, []byte("payload"), 0o644))

	moved, err := m.Move(node, newBase, true)
	require.NoError(t, err)

	_, newData, newLogs := Layout(newBase, "node-1")
	assert.Equal(t, newData, moved.DataPath)
	assert.Equal(t, newLogs, moved.LogsPath)

	// Data travelled, the old tree is gone, the config file was regenerated
	payload, err := os.ReadFile(filepath.Join(newData, "segment-0001"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(payload))

	_, err = os.Stat(node.HomePath())
	assert.True(t, os.IsNotExist(err))

	f := readNodeFile(t, moved)
	assert.Equal(t, newData, f.Path.Data)
}

func TestMoveDiscardingData(t *testing.T) {
	m := New(zap.NewNop())
	oldBase := t.TempDir()
	newBase := t.TempDir()
	node := newTestNode(t, oldBase, "node-1")

	require.NoError(t, m.Create(node))
	require.NoError(t, os.WriteFile(filepath.Join(node.DataPath, "segment-0001"), []byte("payload"), 0o644))

	moved, err := m.Move(node, newBase, false)
	require.NoError(t, err)

	// The new data directory starts empty
	entries, err := os.ReadDir(moved.DataPath)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = os.Stat(node.HomePath())
	assert.True(t, os.IsNotExist(err))
}

func TestMoveRefusesSameBase(t *testing.T) {
	m := New(zap.NewNop())
	base := t.TempDir()
	node := newTestNode(t, base, "node-1")
	require.NoError(t, m.Create(node))

	_, err := m.Move(node, base, true)
	require.Error(t, err)
	assert.Equal(t, managererrors.ErrCodeInvalidArgument, managererrors.GetCode(err))
}

func TestMoveRefusesOccupiedTarget(t *testing.T) {
	m := New(zap.NewNop())
	oldBase := t.TempDir()
	newBase := t.TempDir()
	node := newTestNode(t, oldBase, "node-1")
	require.NoError(t, m.Create(node))

	newHome, _, _ := Layout(newBase, "node-1")
	require.NoError(t, os.MkdirAll(newHome, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(newHome, "stranger.txt"), []byte("x"), 0o644))

	_, err := m.Move(node, newBase, true)
	require.Error(t, err)

	// The source layout is untouched
	_, statErr := os.Stat(node.ConfigFilePath())
	assert.NoError(t, statErr)
}

func TestCopyWithData(t *testing.T) {
	m := New(zap.NewNop())
	base := t.TempDir()
	source := newTestNode(t, base, "node-1")
	require.NoError(t, m.Create(source))
	require.NoError(t, os.WriteFile(filepath.Join(source.DataPath, "segment-0001"), []byte("payload"), 0o644))
	// A stale pid file must not travel with the copy
	require.NoError(t, os.WriteFile(filepath.Join(source.HomePath(), "node.pid"), []byte("1234"), 0o644))

	target := newTestNode(t, base, "node-2")
	target.HTTPPort = 9201
	target.TransportPort = 9301

	require.NoError(t, m.Copy(source, target, true))

	payload, err := os.ReadFile(filepath.Join(target.DataPath, "segment-0001"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(payload))

	_, err = os.Stat(filepath.Join(target.HomePath(), "node.pid"))
	assert.True(t, os.IsNotExist(err))

	// The target's config carries its own identity, not the source's
	f := readNodeFile(t, target)
	assert.Equal(t, "node-2", f.Node.Name)
	assert.Equal(t, 9201, f.HTTP.Port)

	// The source is untouched
	srcFile := readNodeFile(t, source)
	assert.Equal(t, "node-1", srcFile.Node.Name)
	_, err = os.Stat(filepath.Join(source.DataPath, "segment-0001"))
	assert.NoError(t, err)
}

func TestCopyWithoutData(t *testing.T) {
	m := New(zap.NewNop())
	base := t.TempDir()
	source := newTestNode(t, base, "node-1")
	require.NoError(t, m.Create(source))
	require.NoError(t, os.WriteFile(filepath.Join(source.DataPath, "segment-0001"), []byte("payload"), 0o644))

	target := newTestNode(t, base, "node-2")
	require.NoError(t, m.Copy(source, target, false))

	entries, err := os.ReadDir(target.DataPath)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRename(t *testing.T) {
	m := New(zap.NewNop())
	base := t.TempDir()
	node := newTestNode(t, base, "node-1")
	require.NoError(t, m.Create(node))
	require.NoError(t, os.WriteFile(filepath.Join(node.DataPath, "segment-0001"), []byte("payload"), 0o644))

	require.NoError(t, m.Rename(node, "node-renamed"))

	_, err := os.Stat(node.HomePath())
	assert.True(t, os.IsNotExist(err))

	newHome, newData, _ := Layout(base, "node-renamed")
	_, err = os.Stat(newHome)
	require.NoError(t, err)
	payload, err := os.ReadFile(filepath.Join(newData, "segment-0001"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(payload))
}

func TestRemove(t *testing.T) {
	m := New(zap.NewNop())
	base := t.TempDir()
	node := newTestNode(t, base, "node-1")
	require.NoError(t, m.Create(node))

	require.NoError(t, m.Remove(node))
	_, err := os.Stat(node.HomePath())
	assert.True(t, os.IsNotExist(err))

	// Removing an already-absent layout is not an error
	require.NoError(t, m.Remove(node))
}

func TestCheckLayout(t *testing.T) {
	base := t.TempDir()

	t.Run("conforming paths pass", func(t *testing.T) {
		assert.NoError(t, CheckLayout(newTestNode(t, base, "node-1")))
	})

	cases := []struct {
		name   string
		mutate func(*model.NodeConfig)
	}{
		{"empty data path", func(n *model.NodeConfig) { n.DataPath = "" }},
		{"empty logs path", func(n *model.NodeConfig) { n.LogsPath = "" }},
		{"logs outside the home", func(n *model.NodeConfig) { n.LogsPath = filepath.Join(t.TempDir(), "logs") }},
		{"data outside the home", func(n *model.NodeConfig) { n.DataPath = filepath.Join(t.TempDir(), "data") }},
		{"data basename not data", func(n *model.NodeConfig) { n.DataPath = filepath.Join(n.HomePath(), "storage") }},
		{"logs basename not logs", func(n *model.NodeConfig) { n.LogsPath = filepath.Join(n.HomePath(), "log") }},
		{"home not named after node", func(n *model.NodeConfig) {
			_, n.DataPath, n.LogsPath = Layout(filepath.Dir(n.HomePath()), "other-node")
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			node := newTestNode(t, base, "node-1")
			tc.mutate(node)
			err := CheckLayout(node)
			require.Error(t, err)
			assert.Equal(t, managererrors.ErrCodeInvalidArgument, managererrors.GetCode(err))
		})
	}
}
