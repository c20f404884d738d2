package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/roach88/minimib/internal/mib"
	"github.com/roach88/minimib/internal/registry"
)

// File stores values as a JSON object keyed by attribute name.
type File struct {
	path  string
	kinds kinds
	mu    sync.Mutex
}

// NewFile creates a gateway for the JSON document at path.
func NewFile(path string, defs []mib.Definition) *File {
	return &File{path: path, kinds: persistentKinds(defs)}
}

// Load reads the document. Values of the wrong type are skipped; an
// unparseable document is logged and yields an empty snapshot.
func (f *File) Load(ctx context.Context) (registry.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Error("malformed state file, using defaults", "path", f.path, "error", err)
		return registry.Snapshot{}, nil
	}

	snap := make(registry.Snapshot, len(raw))
	for name, msg := range raw {
		kind, ok := f.kinds[name]
		if !ok {
			slog.Warn("ignoring unknown attribute in state file", "path", f.path, "attribute", name)
			continue
		}
		v, err := decodeJSONValue(kind, msg)
		if err != nil {
			slog.Warn("ignoring bad value in state file", "path", f.path, "attribute", name, "error", err)
			continue
		}
		snap[name] = v
	}
	return snap, nil
}

// Save replaces the document atomically: the new content is written and
// synced to a temporary file in the same directory, then renamed over the
// old one.
func (f *File) Save(ctx context.Context, snap registry.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := make(map[string]any, len(snap))
	for name, v := range f.kinds.filter(snap) {
		doc[name] = encodeJSONValue(v)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return writeAtomic(f.path, buf.Bytes())
}

// Close is a no-op for file storage.
func (f *File) Close() error {
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	cleanup = false

	return syncDir(dir)
}

// syncDir makes the rename durable on filesystems that need it.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}

func encodeJSONValue(v mib.Value) any {
	switch val := v.(type) {
	case mib.String:
		return string(val)
	case mib.Integer:
		return int64(val)
	case mib.TimeTicks:
		return uint32(val)
	}
	return nil
}

func decodeJSONValue(kind mib.Kind, msg json.RawMessage) (mib.Value, error) {
	switch kind {
	case mib.KindString:
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil, fmt.Errorf("want string: %w", err)
		}
		return mib.String(s), nil
	case mib.KindInteger:
		var n int64
		if err := json.Unmarshal(msg, &n); err != nil {
			return nil, fmt.Errorf("want integer: %w", err)
		}
		return mib.Integer(n), nil
	case mib.KindTimeTicks:
		var n uint32
		if err := json.Unmarshal(msg, &n); err != nil {
			return nil, fmt.Errorf("want timeticks: %w", err)
		}
		return mib.TimeTicks(n), nil
	}
	return nil, fmt.Errorf("unknown kind %s", kind)
}
