package persist

import (
	"context"
	"os"
	"path/filepath"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

func (m *Manager) upload(ctx context.Context, dir, prefix string) {
	if m.mirror == nil {
		return
	}
	logger := logutil.GetLogger(ctx).With(zap.String("store", m.mirror.Type()), zap.String("snapshot", prefix))
	for _, name := range requiredFiles {
		if err := m.uploadFile(ctx, filepath.Join(dir, name), prefix+"/"+name); err != nil {
			logger.Warn("mirror snapshot file failed", zap.String("file", name), zap.Error(err))
			return
		}
	}
	logger.Debug("snapshot mirrored")
}

func (m *Manager) uploadFile(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	return m.mirror.Save(ctx, key, f, st.Size())
}

func (m *Manager) unmirror(ctx context.Context, prefix string) {
	if m.mirror == nil {
		return
	}
	for _, name := range requiredFiles {
		if err := m.mirror.Delete(ctx, prefix+"/"+name); err != nil {
			logutil.GetLogger(ctx).Warn("delete mirrored snapshot file failed",
				zap.String("snapshot", prefix), zap.String("file", name), zap.Error(err))
		}
	}
}
