package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	// Registry holds every logsweep metric. It is separate from the default
	// registry so a textfile export carries no Go runtime series.
	Registry = prometheus.NewRegistry()
)

// Init initializes all metrics and registers them with Registry
// This function is safe to call multiple times (uses sync.Once)
func Init() {
	initOnce.Do(func() {
		initSweepMetrics()
		registerSweepMetrics()

		// present in the export even before the first run completes
		LastRunTimestamp.Set(0)
	})
}

// WriteTextfile writes the current metric values in the Prometheus text
// format for the node_exporter textfile collector. The file is replaced
// atomically.
func WriteTextfile(path string) error {
	Init()
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
