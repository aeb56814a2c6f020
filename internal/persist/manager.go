package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/semsim/internal/encoder"
	"github.com/xxxsen/semsim/internal/filestore"
	appErr "github.com/xxxsen/semsim/internal/pkg/errors"
	"github.com/xxxsen/semsim/internal/tokenizer"
)

const (
	checkpointDir = "checkpoints"
	tmpPrefix     = ".tmp-"
)

// Snapshot is everything needed to write one version directory.
type Snapshot struct {
	Model         encoder.Trainable
	Tokenizer     tokenizer.Config
	BaseModelName string
	Params        TrainingParams
	Stats         TrainingStats
}

type Version struct {
	Name     string   `json:"version"`
	Path     string   `json:"path"`
	Metadata Metadata `json:"metadata"`
}

type Option func(*Manager)

// WithMirror uploads every written snapshot to store. Upload failures are
// logged and do not fail the save.
func WithMirror(store filestore.Store) Option {
	return func(m *Manager) {
		m.mirror = store
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager owns a base directory of timestamp-named snapshot directories.
type Manager struct {
	baseDir string
	mirror  filestore.Store
	now     func() time.Time
	mu      sync.Mutex
	last    time.Time
}

func NewManager(baseDir string, opts ...Option) (*Manager, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("%w: snapshot base dir is required", appErr.ErrInvalidInput)
	}
	m := &Manager{baseDir: baseDir, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	m.removeStaleTemp(baseDir)
	m.removeStaleTemp(filepath.Join(baseDir, checkpointDir))
	return m, nil
}

func (m *Manager) BaseDir() string {
	return m.baseDir
}

// Mirror returns the configured mirror store, if any.
func (m *Manager) Mirror() filestore.Store {
	return m.mirror
}

// Save writes a complete snapshot and returns its directory.
func (m *Manager) Save(ctx context.Context, snap Snapshot) (string, error) {
	ts := m.timestamp()
	name := ts.Format(VersionLayout)
	return m.write(ctx, m.baseDir, name, name, snap, nil, ts)
}

// SaveCheckpoint writes a snapshot tagged with epoch and loss under
// <base>/checkpoints.
func (m *Manager) SaveCheckpoint(ctx context.Context, snap Snapshot, epoch int, loss float64) (string, error) {
	ts := m.timestamp()
	name := fmt.Sprintf("checkpoint-epoch-%d-%s", epoch, ts.Format(VersionLayout))
	dir := filepath.Join(m.baseDir, checkpointDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create checkpoint dir: %w", err)
	}
	info := &CheckpointInfo{Epoch: epoch, Loss: loss}
	return m.write(ctx, dir, name, checkpointDir+"/"+name, snap, info, ts)
}

// timestamp never returns the same instant twice so version names stay unique.
func (m *Manager) timestamp() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := m.now().UTC()
	if !ts.After(m.last) {
		ts = m.last.Add(time.Nanosecond)
	}
	m.last = ts
	return ts
}

func (m *Manager) write(ctx context.Context, parent, name, mirrorKey string, snap Snapshot, info *CheckpointInfo, ts time.Time) (string, error) {
	if snap.Model == nil {
		return "", fmt.Errorf("%w: snapshot model is required", appErr.ErrInvalidInput)
	}
	final := filepath.Join(parent, name)
	tmp := filepath.Join(parent, tmpPrefix+name)
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	md := Metadata{
		Timestamp:      ts,
		BaseModelName:  snap.BaseModelName,
		TrainingParams: snap.Params,
		TrainingStats:  snap.Stats,
		Checkpoint:     info,
	}
	if err := writeFiles(tmp, snap, md); err != nil {
		_ = os.RemoveAll(tmp)
		return "", err
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.RemoveAll(tmp)
		return "", fmt.Errorf("publish snapshot %s: %w", name, err)
	}
	logutil.GetLogger(ctx).Info("snapshot saved",
		zap.String("path", final),
		zap.String("base_model", snap.BaseModelName),
		zap.Float64("final_loss", snap.Stats.FinalLoss),
	)
	m.upload(ctx, final, mirrorKey)
	return final, nil
}

func writeFiles(dir string, snap Snapshot, md Metadata) error {
	if err := encoder.WriteConfig(filepath.Join(dir, FileConfig), snap.Model.Config()); err != nil {
		return fmt.Errorf("write %s: %w", FileConfig, err)
	}
	if err := tokenizer.SaveConfig(filepath.Join(dir, FileTokenizer), snap.Tokenizer); err != nil {
		return fmt.Errorf("write %s: %w", FileTokenizer, err)
	}
	if err := encoder.SaveWeights(filepath.Join(dir, FileWeights), snap.Model); err != nil {
		return fmt.Errorf("write %s: %w", FileWeights, err)
	}
	if err := writeMetadata(filepath.Join(dir, FileMetadata), md); err != nil {
		return fmt.Errorf("write %s: %w", FileMetadata, err)
	}
	return nil
}

// LoadAndValidate checks that path is a complete snapshot and returns its
// metadata. Every failure names the offending file.
func (m *Manager) LoadAndValidate(path string) (Metadata, error) {
	return LoadAndValidate(path)
}

func LoadAndValidate(path string) (Metadata, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Metadata{}, fmt.Errorf("%w: snapshot %s does not exist", appErr.ErrModel, path)
		}
		return Metadata{}, fmt.Errorf("%w: stat snapshot %s: %v", appErr.ErrModel, path, err)
	}
	if !st.IsDir() {
		return Metadata{}, fmt.Errorf("%w: snapshot %s is not a directory", appErr.ErrModel, path)
	}
	for _, name := range requiredFiles {
		fst, err := os.Stat(filepath.Join(path, name))
		if err != nil {
			return Metadata{}, fmt.Errorf("%w: snapshot %s is missing %s", appErr.ErrModel, path, name)
		}
		if fst.IsDir() {
			return Metadata{}, fmt.Errorf("%w: snapshot %s: %s is a directory", appErr.ErrModel, path, name)
		}
		if fst.Size() == 0 {
			return Metadata{}, fmt.Errorf("%w: snapshot %s: %s is empty", appErr.ErrModel, path, name)
		}
	}
	md, err := readMetadata(filepath.Join(path, FileMetadata))
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: snapshot %s: parse %s: %v", appErr.ErrModel, path, FileMetadata, err)
	}
	return md, nil
}

// ListVersions returns the valid snapshots in the base directory, newest
// first. Invalid directories are logged and skipped.
func (m *Manager) ListVersions(ctx context.Context) ([]Version, error) {
	return m.list(ctx, m.baseDir)
}

func (m *Manager) ListCheckpoints(ctx context.Context) ([]Version, error) {
	return m.list(ctx, filepath.Join(m.baseDir, checkpointDir))
}

func (m *Manager) list(ctx context.Context, dir string) ([]Version, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Version{}, nil
		}
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}
	logger := logutil.GetLogger(ctx)
	out := make([]Version, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") || name == checkpointDir {
			continue
		}
		path := filepath.Join(dir, name)
		md, err := LoadAndValidate(path)
		if err != nil {
			logger.Warn("skip invalid snapshot", zap.String("path", path), zap.Error(err))
			continue
		}
		out = append(out, Version{Name: name, Path: path, Metadata: md})
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Metadata.Timestamp, out[j].Metadata.Timestamp
		if ti.Equal(tj) {
			return out[i].Name > out[j].Name
		}
		return ti.After(tj)
	})
	return out, nil
}

// Latest returns the newest valid snapshot.
func (m *Manager) Latest(ctx context.Context) (Version, error) {
	versions, err := m.ListVersions(ctx)
	if err != nil {
		return Version{}, err
	}
	if len(versions) == 0 {
		return Version{}, fmt.Errorf("%w: no snapshot in %s", appErr.ErrNotFound, m.baseDir)
	}
	return versions[0], nil
}

// Resolve maps a version name to its directory.
func (m *Manager) Resolve(version string) (string, error) {
	version = strings.TrimSpace(version)
	if version == "" || version != filepath.Base(version) || strings.HasPrefix(version, ".") {
		return "", fmt.Errorf("%w: invalid version %q", appErr.ErrInvalidInput, version)
	}
	path := filepath.Join(m.baseDir, version)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: version %s", appErr.ErrNotFound, version)
	}
	return path, nil
}

// Loaded is a snapshot read back into memory.
type Loaded struct {
	Model     *encoder.EmbeddingModel
	Tokenizer tokenizer.Config
	Metadata  Metadata
	Path      string
}

// LoadModel validates path and rebuilds the model it holds. The directory
// name becomes the model version.
func LoadModel(path string) (*Loaded, error) {
	md, err := LoadAndValidate(path)
	if err != nil {
		return nil, err
	}
	cfg, err := encoder.ReadConfig(filepath.Join(path, FileConfig))
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %s: %w", path, FileConfig, err)
	}
	tokCfg, err := tokenizer.LoadConfig(filepath.Join(path, FileTokenizer))
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot %s: %s: %v", appErr.ErrModel, path, FileTokenizer, err)
	}
	model, err := encoder.LoadModel(cfg, filepath.Join(path, FileWeights), filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %s: %w", path, FileWeights, err)
	}
	return &Loaded{Model: model, Tokenizer: tokCfg, Metadata: md, Path: path}, nil
}

// Prune removes all but the maxKeep newest versions and returns the removed
// names. maxKeep <= 0 keeps everything.
func (m *Manager) Prune(ctx context.Context, maxKeep int) ([]string, error) {
	if maxKeep <= 0 {
		return nil, nil
	}
	versions, err := m.ListVersions(ctx)
	if err != nil {
		return nil, err
	}
	if len(versions) <= maxKeep {
		return nil, nil
	}
	logger := logutil.GetLogger(ctx)
	removed := make([]string, 0, len(versions)-maxKeep)
	for _, v := range versions[maxKeep:] {
		if err := os.RemoveAll(v.Path); err != nil {
			return removed, fmt.Errorf("remove snapshot %s: %w", v.Name, err)
		}
		logger.Info("snapshot pruned", zap.String("version", v.Name))
		m.unmirror(ctx, v.Name)
		removed = append(removed, v.Name)
	}
	return removed, nil
}

func (m *Manager) removeStaleTemp(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), tmpPrefix) {
			path := filepath.Join(dir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				logutil.GetLogger(context.Background()).Warn("remove stale snapshot temp dir failed", zap.String("path", path), zap.Error(err))
			}
		}
	}
}
