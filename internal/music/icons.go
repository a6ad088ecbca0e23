package music

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/genricoloni/notchd/internal/domain"
	"go.uber.org/zap"
)

// FileIconProvider serves application icons stored as <bundle id>.png in a directory
type FileIconProvider struct {
	logger *zap.Logger
	dir    string

	mu    sync.Mutex
	icons map[string][]byte // Negative results are cached as nil
}

// NewFileIconProvider creates an icon provider for the configured icon directory.
// An empty directory disables icon substitution.
func NewFileIconProvider(logger *zap.Logger, cfg domain.Config) *FileIconProvider {
	return &FileIconProvider{
		logger: logger,
		dir:    cfg.GetIconDir(),
		icons:  make(map[string][]byte),
	}
}

// Icon returns the PNG icon of bundleID
func (p *FileIconProvider) Icon(bundleID string) ([]byte, bool) {
	if p.dir == "" || bundleID == "" || strings.ContainsAny(bundleID, `/\`) {
		return nil, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if icon, ok := p.icons[bundleID]; ok {
		return icon, icon != nil
	}

	path := filepath.Join(p.dir, bundleID+".png")
	icon, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("Failed to read application icon", zap.String("path", path), zap.Error(err))
		}
		icon = nil
	}
	if len(icon) == 0 {
		icon = nil
	}
	p.icons[bundleID] = icon
	return icon, icon != nil
}
