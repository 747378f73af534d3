package production

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/comalice/ctlfsm/internal/core"
)

// WriteSnapshotYAML encodes snap as a YAML document.
func WriteSnapshotYAML(w io.Writer, snap core.Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}
	return enc.Close()
}

// ReadSnapshotYAML decodes a document written by WriteSnapshotYAML.
func ReadSnapshotYAML(r io.Reader) (core.Snapshot, error) {
	var snap core.Snapshot
	if err := yaml.NewDecoder(r).Decode(&snap); err != nil {
		return core.Snapshot{}, fmt.Errorf("yaml decode: %w", err)
	}
	return snap, nil
}

// SaveSnapshot writes snap to <dir>/<machine>.yaml, creating dir if needed,
// and returns the file path.
func SaveSnapshot(dir string, snap core.Snapshot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	fn := filepath.Join(dir, snap.Machine+".yaml")
	f, err := os.Create(fn)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", fn, err)
	}
	if err := WriteSnapshotYAML(f, snap); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", fn, err)
	}
	return fn, nil
}
