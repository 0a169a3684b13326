package shinkai

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// secretFileName holds the node's own persisted name under the data
// root.
const secretFileName = ".secret"

// loadNodeName reads dataRoot/.secret, returning "" if it does not exist
// yet (a fresh node with no persisted name).
func loadNodeName(dataRoot string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dataRoot, secretFileName))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("shinkai: read %s: %w", secretFileName, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// persistNodeName writes name to dataRoot/.secret, rewritten atomically
// via a temp file plus rename so a crash mid-write never leaves a
// truncated or partial name on disk.
func persistNodeName(dataRoot, name string) error {
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return fmt.Errorf("shinkai: create data root: %w", err)
	}
	final := filepath.Join(dataRoot, secretFileName)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, []byte(name), 0o600); err != nil {
		return fmt.Errorf("shinkai: write %s: %w", secretFileName, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("shinkai: rename %s into place: %w", secretFileName, err)
	}
	return nil
}
