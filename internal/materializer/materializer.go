package materializer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	managererrors "github.com/sayfpack13/TrustQuery-sub002/internal/errors"
	"github.com/sayfpack13/TrustQuery-sub002/internal/model"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	configDirName  = "config"
	configFileName = "node.yml"
	dataDirName    = "data"
	logsDirName    = "logs"
	pidFileName    = "node.pid"
)

// Materializer turns a validated node configuration into an on-disk
// layout and can relocate or duplicate that layout. Every node occupies
// <base>/<name>/{config/node.yml,data,logs}. Uniqueness is the
// validator's concern; this component only checks filesystem feasibility.
type Materializer struct {
	logger *zap.Logger
}

// New creates a new materializer
func New(logger *zap.Logger) *Materializer {
	return &Materializer{logger: logger}
}

// Layout computes the home, data and logs paths a node would occupy
// under the given base directory
func Layout(basePath, name string) (home, dataPath, logsPath string) {
	home = filepath.Join(basePath, name)
	return home, filepath.Join(home, dataDirName), filepath.Join(home, logsDirName)
}

// CheckLayout verifies that a node's paths follow the
// <base>/<name>/{data,logs} contract. Move, copy and remove relocate the
// home directory as a single unit, so a data or logs tree outside it
// would be orphaned the first time the node moves.
func CheckLayout(node *model.NodeConfig) error {
	if node.DataPath == "" || node.LogsPath == "" {
		return managererrors.InvalidArgument("data and logs paths are required", nil)
	}
	data := filepath.Clean(node.DataPath)
	logs := filepath.Clean(node.LogsPath)
	home := filepath.Dir(data)
	if filepath.Base(data) != dataDirName ||
		filepath.Base(logs) != logsDirName ||
		filepath.Dir(logs) != home ||
		filepath.Base(home) != node.Name {
		return managererrors.InvalidArgument(
			fmt.Sprintf("node paths must be %q and %q under a home directory named %q",
				filepath.Join(node.Name, dataDirName), filepath.Join(node.Name, logsDirName), node.Name), nil)
	}
	return nil
}

// nodeFile is the configuration file handed to the engine process
type nodeFile struct {
	Cluster struct {
		Name string `yaml:"name"`
	} `yaml:"cluster"`
	Node struct {
		Name   string `yaml:"name"`
		Master bool   `yaml:"master"`
		Data   bool   `yaml:"data"`
		Ingest bool   `yaml:"ingest"`
	} `yaml:"node"`
	Network struct {
		Host string `yaml:"host"`
	} `yaml:"network"`
	HTTP struct {
		Port int `yaml:"port"`
	} `yaml:"http"`
	Transport struct {
		Port int `yaml:"port"`
	} `yaml:"transport"`
	Path struct {
		Data string `yaml:"data"`
		Logs string `yaml:"logs"`
	} `yaml:"path"`
	JVM struct {
		HeapSize string `yaml:"heap_size"`
	} `yaml:"jvm"`
}

// Create allocates the node's directory layout and writes its
// configuration file. The home directory must be absent or empty: an
// occupied path belongs to someone else and is never adopted.
func (m *Materializer) Create(node *model.NodeConfig) error {
	home := node.HomePath()

	if err := ensureAbsentOrEmpty(home); err != nil {
		return err
	}

	for _, dir := range []string{node.DataPath, node.LogsPath, filepath.Join(home, configDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = os.RemoveAll(home)
			return managererrors.Filesystem("mkdir", dir, err)
		}
	}

	if err := m.WriteConfigFile(node); err != nil {
		_ = os.RemoveAll(home)
		return err
	}

	m.logger.Info("node layout materialized",
		zap.String("node", node.Name),
		zap.String("home", home))
	return nil
}

// WriteConfigFile regenerates the node's configuration file from its
// registered configuration
func (m *Materializer) WriteConfigFile(node *model.NodeConfig) error {
	var f nodeFile
	f.Cluster.Name = node.Cluster
	f.Node.Name = node.Name
	f.Node.Master = node.Roles.Master
	f.Node.Data = node.Roles.Data
	f.Node.Ingest = node.Roles.Ingest
	f.Network.Host = node.Host
	f.HTTP.Port = node.HTTPPort
	f.Transport.Port = node.TransportPort
	f.Path.Data = node.DataPath
	f.Path.Logs = node.LogsPath
	f.JVM.HeapSize = node.HeapSize

	data, err := yaml.Marshal(&f)
	if err != nil {
		return managererrors.InternalError("failed to marshal node configuration", err)
	}

	path := node.ConfigFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return managererrors.Filesystem("mkdir", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return managererrors.Filesystem("write", path, err)
	}
	return nil
}

// Move relocates the node's layout to a new base path and returns the
// updated configuration. The caller updates the registry only after Move
// returns, so a failed move leaves the old record and the old files
// untouched. With preserveData false the new location starts empty and
// the old tree is discarded; that path is destructive and must be an
// explicit operator choice, never a default.
func (m *Materializer) Move(node *model.NodeConfig, newBasePath string, preserveData bool) (*model.NodeConfig, error) {
	oldHome := node.HomePath()
	newHome, newData, newLogs := Layout(newBasePath, node.Name)

	if newHome == oldHome {
		return nil, managererrors.InvalidArgument(fmt.Sprintf("node '%s' already lives under %s", node.Name, newBasePath), nil)
	}
	if err := ensureAbsentOrEmpty(newHome); err != nil {
		return nil, err
	}

	moved := node.Clone()
	moved.DataPath = newData
	moved.LogsPath = newLogs

	if !preserveData {
		if err := m.Create(moved); err != nil {
			return nil, err
		}
		if err := os.RemoveAll(oldHome); err != nil {
			// Roll back the fresh layout; the old record stays authoritative
			_ = os.RemoveAll(newHome)
			return nil, managererrors.Filesystem("remove", oldHome, err)
		}
		m.logger.Info("node relocated without data",
			zap.String("node", node.Name),
			zap.String("from", oldHome),
			zap.String("to", newHome))
		return moved, nil
	}

	if err := os.MkdirAll(filepath.Dir(newHome), 0o755); err != nil {
		return nil, managererrors.Filesystem("mkdir", filepath.Dir(newHome), err)
	}

	if err := os.Rename(oldHome, newHome); err != nil {
		// Rename fails across filesystems; fall back to copy then delete
		if copyErr := copyTree(oldHome, newHome); copyErr != nil {
			_ = os.RemoveAll(newHome)
			return nil, managererrors.Filesystem("move", oldHome, copyErr)
		}
		if err := os.RemoveAll(oldHome); err != nil {
			_ = os.RemoveAll(newHome)
			return nil, managererrors.Filesystem("remove", oldHome, err)
		}
	}

	// The config file embeds absolute paths; regenerate it in place
	if err := m.WriteConfigFile(moved); err != nil {
		if rbErr := m.rollbackMove(newHome, oldHome); rbErr != nil {
			m.logger.Error("rollback after failed move did not restore the old layout",
				zap.String("node", node.Name),
				zap.Error(rbErr))
		}
		return nil, err
	}

	m.logger.Info("node relocated",
		zap.String("node", node.Name),
		zap.String("from", oldHome),
		zap.String("to", newHome))
	return moved, nil
}

// rollbackMove tries to put a moved tree back where it came from
func (m *Materializer) rollbackMove(newHome, oldHome string) error {
	if err := os.Rename(newHome, oldHome); err == nil {
		return nil
	}
	if err := copyTree(newHome, oldHome); err != nil {
		return err
	}
	return os.RemoveAll(newHome)
}

// Copy duplicates the source layout for a brand-new node configuration.
// With copyData the whole data tree is copied recursively; otherwise the
// destination starts empty. The source is never modified. Any failure
// removes the partial destination so a half-copied node is never left
// behind.
func (m *Materializer) Copy(source, target *model.NodeConfig, copyData bool) error {
	if !copyData {
		return m.Create(target)
	}

	targetHome := target.HomePath()
	if err := ensureAbsentOrEmpty(targetHome); err != nil {
		return err
	}

	if err := copyTree(source.HomePath(), targetHome); err != nil {
		_ = os.RemoveAll(targetHome)
		return managererrors.Filesystem("copy", source.HomePath(), err)
	}

	// The duplicate keeps the data but gets its own identity: drop the
	// source's pid file and regenerate the config for the new name/ports.
	_ = os.Remove(filepath.Join(targetHome, pidFileName))
	if err := m.WriteConfigFile(target); err != nil {
		_ = os.RemoveAll(targetHome)
		return err
	}

	m.logger.Info("node layout duplicated",
		zap.String("source", source.Name),
		zap.String("target", target.Name),
		zap.String("home", targetHome))
	return nil
}

// Rename moves a node's home directory to a sibling named after the new
// node name. The node argument still carries the old name and paths; the
// caller rewrites the record afterwards.
func (m *Materializer) Rename(node *model.NodeConfig, newName string) error {
	oldHome := node.HomePath()
	newHome := filepath.Join(filepath.Dir(oldHome), newName)

	if err := ensureAbsentOrEmpty(newHome); err != nil {
		return err
	}
	if err := os.Rename(oldHome, newHome); err != nil {
		return managererrors.Filesystem("rename", oldHome, err)
	}

	m.logger.Info("node home renamed",
		zap.String("from", oldHome),
		zap.String("to", newHome))
	return nil
}

// Remove deletes the node's entire on-disk layout
func (m *Materializer) Remove(node *model.NodeConfig) error {
	home := node.HomePath()
	if err := os.RemoveAll(home); err != nil {
		return managererrors.Filesystem("remove", home, err)
	}

	m.logger.Info("node layout removed",
		zap.String("node", node.Name),
		zap.String("home", home))
	return nil
}

// ensureAbsentOrEmpty rejects a target path already occupied by
// unrelated content
func ensureAbsentOrEmpty(path string) error {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return managererrors.Filesystem("stat", path, err)
	}
	if len(entries) > 0 {
		return managererrors.Filesystem("occupied", path,
			fmt.Errorf("target directory already contains %d entries", len(entries)))
	}
	return nil
}

// copyTree recursively copies a directory tree, preserving file modes
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
