package infra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
)

const consentFileName = ".location_consent"

// ConsentGate implements domain.PermissionService. A headless agent cannot
// pop an OS permission dialog, so location capability is modelled as an
// explicit consent marker in the data directory: granted once via the CLI,
// re-checked only on the next full initialization (no retry loop).
type ConsentGate struct {
	consentPath string
	logger      *zap.Logger
}

// NewConsentGate creates a consent-backed permission service.
func NewConsentGate(dataDir string, logger *zap.Logger) *ConsentGate {
	return &ConsentGate{
		consentPath: filepath.Join(dataDir, consentFileName),
		logger:      logger,
	}
}

// RequestForeground reports whether location consent has been granted.
func (g *ConsentGate) RequestForeground(ctx context.Context) (bool, error) {
	_, err := os.Stat(g.consentPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check consent marker: %w", err)
}

// RequestBackground issues the secondary background-capability request. Only
// darwin hosts support always-on location; elsewhere the request reports not
// granted. Callers must treat the result as informational only.
func (g *ConsentGate) RequestBackground(ctx context.Context) (bool, error) {
	if runtime.GOOS != "darwin" {
		g.logger.Debug("background location not supported on this platform",
			zap.String("goos", runtime.GOOS))
		return false, nil
	}
	return g.RequestForeground(ctx)
}

// Grant writes the consent marker.
func (g *ConsentGate) Grant() error {
	if err := os.MkdirAll(filepath.Dir(g.consentPath), 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(g.consentPath, []byte("granted\n"), 0600); err != nil {
		return fmt.Errorf("failed to write consent marker: %w", err)
	}
	return nil
}

// Revoke removes the consent marker.
func (g *ConsentGate) Revoke() error {
	err := os.Remove(g.consentPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove consent marker: %w", err)
	}
	return nil
}
