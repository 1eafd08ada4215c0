// Package capture records raw inbound and outbound payloads to disk so agent
// integrations can be debugged and replayed as test fixtures. It is off unless
// a directory is configured.
package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	sessionID  = time.Now().Format("20060102-150405")
	captureSeq uint64

	mu  sync.RWMutex
	dir string
)

// Enable turns capture on, writing under dir/<session>/.
func Enable(captureDir string) {
	mu.Lock()
	defer mu.Unlock()
	dir = captureDir
}

// Disable turns capture off.
func Disable() {
	Enable("")
}

// Enabled reports whether capture is currently active.
func Enabled() bool {
	return directory() != ""
}

func directory() string {
	mu.RLock()
	defer mu.RUnlock()
	return dir
}

// writeFile stores data as <category>-<seq>.<ext>. Failures are logged only.
func writeFile(category, ext string, data []byte) string {
	base := directory()
	if base == "" {
		return ""
	}

	seq := atomic.AddUint64(&captureSeq, 1)
	sessionDir := filepath.Join(base, sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", sessionDir).Msg("capture: failed to create directory")
		return ""
	}

	path := filepath.Join(sessionDir, fmt.Sprintf("%s-%04d.%s", category, seq, ext))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("capture: failed to write file")
		return ""
	}

	log.Debug().Str("path", path).Msg("capture: wrote payload")
	return path
}

// WriteJSON marshals payload to indented JSON and stores it.
func WriteJSON(category string, payload interface{}) string {
	if !Enabled() {
		return ""
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		log.Warn().Err(err).Str("category", category).Msg("capture: failed to marshal payload")
		return ""
	}
	return writeFile(category, "json", data)
}

// WriteBlob stores bytes as-is, e.g. a callback body that failed to parse.
func WriteBlob(category, ext string, data []byte) string {
	if !Enabled() {
		return ""
	}
	return writeFile(category, ext, data)
}
