package biz

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/id"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/utils/json"
)

// ModelRegistry 持有当前生效的 ClusterModel 快照。
// 快照不可变，替换通过原子指针交换完成：旧模型继续服务在途的
// assign 调用，新请求立即看到新模型。
type ModelRegistry struct {
	current atomic.Pointer[ClusterModel]
	path    string
}

// NewModelRegistry 创建注册表。path 为快照文件位置，可为空（纯内存）。
func NewModelRegistry(path string) *ModelRegistry {
	return &ModelRegistry{path: path}
}

// Path 返回快照文件位置。
func (r *ModelRegistry) Path() string {
	return r.path
}

// Current 返回当前快照，没有加载过任何模型时返回 nil。
func (r *ModelRegistry) Current() *ClusterModel {
	return r.current.Load()
}

// Swap 原子替换当前快照。模型尚无版本号时铸造一个 ULID。
func (r *ModelRegistry) Swap(m *ClusterModel) {
	if m.Version == "" {
		m.Version = id.NewULID()
	}
	old := r.current.Swap(m)

	oldVersion := ""
	if old != nil {
		oldVersion = old.Version
	}
	logger.Infow("cluster model swapped",
		"version", m.Version,
		"previous", oldVersion,
		"clusters", len(m.Centroids),
	)
}

// Save 把快照写入磁盘。先写临时文件再重命名，读侧不会看到半个文件。
func (r *ModelRegistry) Save(m *ClusterModel) error {
	if r.path == "" {
		return fmt.Errorf("model registry has no snapshot path")
	}
	if m.Version == "" {
		m.Version = id.NewULID()
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cluster model: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmpName, r.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}

// Load 从磁盘读取快照并替换当前模型。
func (r *ModelRegistry) Load() error {
	if r.path == "" {
		return fmt.Errorf("model registry has no snapshot path")
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	var m ClusterModel
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	r.Swap(&m)
	return nil
}

// Watch 监听快照文件变化并热加载，阻塞直到 ctx 取消。
// 加载失败只记日志，当前模型保持不变。
func (r *ModelRegistry) Watch(ctx context.Context) error {
	if r.path == "" {
		return fmt.Errorf("model registry has no snapshot path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// 监听目录而非文件：原子重命名替换会使文件级 watch 失效
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("failed to watch snapshot dir: %w", err)
	}

	target, err := filepath.Abs(r.path)
	if err != nil {
		return fmt.Errorf("failed to resolve snapshot path: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != target {
				continue
			}
			if err := r.Load(); err != nil {
				logger.Warnw("snapshot reload failed, keeping current model",
					"path", r.path, "error", err.Error())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("snapshot watcher error", "error", err.Error())
		}
	}
}
