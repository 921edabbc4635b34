package registry

import (
	"context"

	"go.uber.org/zap"
)

// Warm loads every stored service into the cache. Broken plans are logged and
// skipped; it returns the names that failed to load.
func (m *Manager) Warm(ctx context.Context) ([]string, error) {
	names, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	var failed []string
	for _, name := range names {
		if _, err := m.Load(ctx, name); err != nil {
			if ctx.Err() != nil {
				return failed, ctx.Err()
			}
			m.logger.Warn("Skipping invalid service", zap.String("service", name), zap.Error(err))
			failed = append(failed, name)
		}
	}

	m.logger.Info("Loaded service registry",
		zap.Int("loaded", len(names)-len(failed)),
		zap.Int("failed", len(failed)),
	)
	return failed, nil
}
