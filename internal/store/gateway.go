package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/minimib/internal/mib"
	"github.com/roach88/minimib/internal/registry"
)

// ErrNotFound is returned by Load when no state has been saved yet.
var ErrNotFound = errors.New("no saved state")

// Gateway loads and saves the persistent attribute values.
type Gateway interface {
	Load(ctx context.Context) (registry.Snapshot, error)
	Save(ctx context.Context, snap registry.Snapshot) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open returns the gateway for backend, storing at path.
func Open(backend, path string, defs []mib.Definition) (Gateway, error) {
	switch backend {
	case "", BackendFile:
		return NewFile(path, defs), nil
	case BackendSQLite:
		return OpenSQLite(path, defs)
	}
	return nil, fmt.Errorf("open store: unknown backend %q", backend)
}

// LoadInto restores saved values into reg. When nothing has been saved yet
// the registry's current values are written so the next start finds them.
func LoadInto(ctx context.Context, gw Gateway, reg *registry.Registry) error {
	snap, err := gw.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		slog.Info("no saved state, writing defaults")
		if err := gw.Save(ctx, reg.Snapshot()); err != nil {
			return fmt.Errorf("save defaults: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	if skipped := reg.Restore(snap); len(skipped) > 0 {
		slog.Warn("saved values not restored", "attributes", skipped)
	}
	slog.Info("state loaded", "attributes", len(snap))
	return nil
}

// kinds indexes the persistent attributes by name.
type kinds map[string]mib.Kind

func persistentKinds(defs []mib.Definition) kinds {
	k := make(kinds, len(defs))
	for _, d := range defs {
		if d.Persistent() {
			k[d.Name] = d.Kind
		}
	}
	return k
}

// filter drops anything that is not a persistent attribute of the right kind.
func (k kinds) filter(snap registry.Snapshot) registry.Snapshot {
	out := make(registry.Snapshot, len(k))
	for name, v := range snap {
		if kind, ok := k[name]; ok && v != nil && v.Kind() == kind {
			out[name] = v
		}
	}
	return out
}
