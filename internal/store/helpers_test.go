package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/minimib/internal/mib"
	"github.com/roach88/minimib/internal/registry"
	"github.com/roach88/minimib/internal/schema"
)

func defaultDefs(t *testing.T) []mib.Definition {
	t.Helper()
	defs, err := schema.Default()
	require.NoError(t, err)
	return defs
}

func newRegistry(t *testing.T, defs []mib.Definition) *registry.Registry {
	t.Helper()
	reg, err := registry.New(defs)
	require.NoError(t, err)
	return reg
}

func openSQLite(t *testing.T, path string) *SQLite {
	t.Helper()
	s, err := OpenSQLite(path, defaultDefs(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
