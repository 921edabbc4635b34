package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/nbapi/internal/domain/plan"
	"github.com/GriffinCanCode/nbapi/internal/domain/plan/codec"
)

const (
	// MaxCacheSize defines the maximum number of services in the cache
	MaxCacheSize = 1000
	// CacheEvictionThreshold defines when to trigger eviction (90% of max)
	CacheEvictionThreshold = 900
)

var (
	ErrNotFound    = errors.New("service not found")
	ErrInvalidName = errors.New("invalid service name")
)

// extensions lists the file suffixes a name may be stored under, in lookup order.
var extensions = []string{
	".yaml", ".yml", ".json", ".toml", ".cbor",
	".yaml.gz", ".yml.gz", ".json.gz", ".toml.gz", ".cbor.gz",
}

type cached struct {
	svc  *plan.Service
	path string
}

// Manager handles service persistence
type Manager struct {
	dir    string
	codec  codec.Codec
	logger *zap.Logger

	services   sync.Map // name -> *cached
	cacheSize  int64
	evicting   int32
	evictionMu sync.Mutex

	// writeMu serialises file mutations so lookups never observe a half-renamed plan.
	writeMu sync.RWMutex
}

// NewManager creates a registry rooted at dir. New services are written in format.
func NewManager(dir string, format codec.Format, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := codec.ForPath("x." + string(format))
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	return &Manager{dir: abs, codec: c, logger: logger}, nil
}

// Dir returns the absolute registry directory.
func (m *Manager) Dir() string {
	return m.dir
}

// CleanName normalises a service name and rejects names escaping the registry.
func CleanName(name string) (string, error) {
	trimmed := strings.Trim(name, "/")
	if trimmed == "" || strings.ContainsAny(trimmed, `\:`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	cleaned := path.Clean(trimmed)
	for _, part := range strings.Split(cleaned, "/") {
		if part == ".." || part == "." || strings.HasPrefix(part, ".") {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	if codec.IsPlanFile(cleaned) {
		return "", fmt.Errorf("%w: %q must not carry a file extension", ErrInvalidName, name)
	}
	return cleaned, nil
}

// Save writes svc under name. An existing file keeps its format.
func (m *Manager) Save(ctx context.Context, name string, svc *plan.Service) error {
	name, err := CleanName(name)
	if err != nil {
		return err
	}
	if svc == nil || svc.URL == "" {
		return fmt.Errorf("%w: service url is required", codec.ErrInvalidPlan)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	target := m.locate(name)
	if target == "" {
		target = m.filePath(name, m.codec.Ext())
	}
	if err := codec.WriteFile(target, svc); err != nil {
		return fmt.Errorf("save service %s: %w", name, err)
	}

	m.store(name, &cached{svc: svc, path: target})
	m.logger.Debug("Saved service", zap.String("service", name), zap.String("path", target))
	return nil
}

// Load returns the service stored under name. Callers must not modify it.
func (m *Manager) Load(ctx context.Context, name string) (*plan.Service, error) {
	name, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	if c, ok := m.services.Load(name); ok {
		return c.(*cached).svc, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.writeMu.RLock()
	defer m.writeMu.RUnlock()

	target := m.locate(name)
	if target == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	svc, err := codec.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("load service %s: %w", name, err)
	}

	m.store(name, &cached{svc: svc, path: target})
	return svc, nil
}

// Exists reports whether a service is stored under name.
func (m *Manager) Exists(name string) bool {
	name, err := CleanName(name)
	if err != nil {
		return false
	}
	if _, ok := m.services.Load(name); ok {
		return true
	}
	m.writeMu.RLock()
	defer m.writeMu.RUnlock()
	return m.locate(name) != ""
}

// Delete removes the service stored under name.
func (m *Manager) Delete(ctx context.Context, name string) error {
	name, err := CleanName(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	target := m.locate(name)
	if target == "" {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := os.Remove(target); err != nil {
		return fmt.Errorf("delete service %s: %w", name, err)
	}
	m.Evict(name)
	m.logger.Debug("Deleted service", zap.String("service", name))
	return nil
}

// List returns the sorted names of every stored service.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	paths, err := m.walk(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(paths))
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		name := m.nameOf(p)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Evict drops name from the cache.
func (m *Manager) Evict(name string) {
	if _, existed := m.services.LoadAndDelete(name); existed {
		atomic.AddInt64(&m.cacheSize, -1)
	}
}

// CacheSize returns the number of cached services.
func (m *Manager) CacheSize() int {
	return int(atomic.LoadInt64(&m.cacheSize))
}

// walk collects every plan file below the registry directory.
func (m *Manager) walk(ctx context.Context) ([]string, error) {
	var (
		mu    sync.Mutex
		paths []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, m.dir, func(p string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != m.dir && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !codec.IsPlanFile(p) {
			return nil
		}
		mu.Lock()
		paths = append(paths, p)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return paths, nil
}

// locate finds the file holding name, or returns "".
func (m *Manager) locate(name string) string {
	for _, ext := range extensions {
		p := m.filePath(name, ext)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

func (m *Manager) filePath(name, ext string) string {
	return filepath.Join(m.dir, filepath.FromSlash(name)+ext)
}

// nameOf maps a plan file path back to its service name, or "" outside the registry.
func (m *Manager) nameOf(p string) string {
	rel, err := filepath.Rel(m.dir, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	rel = filepath.ToSlash(rel)
	lower := strings.ToLower(rel)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return rel[:len(rel)-len(ext)]
		}
	}
	return ""
}

func (m *Manager) store(name string, c *cached) {
	if _, existed := m.services.Swap(name, c); existed {
		return
	}
	if atomic.AddInt64(&m.cacheSize, 1) > CacheEvictionThreshold {
		m.evictCacheEntries()
	}
}

// evictCacheEntries removes entries when cache grows too large
func (m *Manager) evictCacheEntries() {
	if !atomic.CompareAndSwapInt32(&m.evicting, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&m.evicting, 0)

	m.evictionMu.Lock()
	defer m.evictionMu.Unlock()

	currentSize := atomic.LoadInt64(&m.cacheSize)
	if currentSize <= CacheEvictionThreshold {
		return
	}

	// sync.Map has no order, so the evicted entries are arbitrary.
	target := currentSize - CacheEvictionThreshold + 100
	var evicted int64
	m.services.Range(func(key, _ interface{}) bool {
		if evicted >= target {
			return false
		}
		if _, ok := m.services.LoadAndDelete(key); ok {
			evicted++
		}
		return true
	})
	atomic.AddInt64(&m.cacheSize, -evicted)
}
