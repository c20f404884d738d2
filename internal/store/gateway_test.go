package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minimib/internal/mib"
	"github.com/roach88/minimib/internal/registry"
)

func TestOpen_Backends(t *testing.T) {
	dir := t.TempDir()
	defs := defaultDefs(t)

	gw, err := Open("", filepath.Join(dir, "state.json"), defs)
	require.NoError(t, err)
	assert.IsType(t, &File{}, gw)

	gw, err = Open(BackendSQLite, filepath.Join(dir, "state.db"), defs)
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, gw)
	require.NoError(t, gw.Close())

	_, err = Open("etcd", "x", defs)
	assert.ErrorContains(t, err, `unknown backend "etcd"`)
}

func TestLoadInto_WritesDefaultsWhenMissing(t *testing.T) {
	ctx := context.Background()
	defs := defaultDefs(t)
	path := filepath.Join(t.TempDir(), "state.json")
	gw := NewFile(path, defs)

	reg := newRegistry(t, defs)
	require.NoError(t, LoadInto(ctx, gw, reg))
	assert.FileExists(t, path)

	saved, err := gw.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, reg.Snapshot(), saved)
}

// Every stored read-write value survives save and load into a fresh
// registry; read-only and computed values are untouched.
func TestLoadInto_RoundTrip(t *testing.T) {
	for _, backend := range []string{BackendFile, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			defs := defaultDefs(t)
			gw, err := Open(backend, filepath.Join(t.TempDir(), "state"), defs)
			require.NoError(t, err)
			defer gw.Close()

			src := newRegistry(t, defs)
			_, err = src.WriteBatch([]registry.Pair{
				{OID: mib.MustParseOID("1.3.6.1.3.28308.1.1.0"), Value: mib.String("NetworkAdmin2")},
				{OID: mib.MustParseOID("1.3.6.1.3.28308.1.2.0"), Value: mib.String("admin@example.com")},
				{OID: mib.MustParseOID("1.3.6.1.3.28308.1.4.0"), Value: mib.Integer(42)},
			}, nil)
			require.NoError(t, err)
			require.NoError(t, gw.Save(ctx, src.Snapshot()))

			dst := newRegistry(t, defs)
			require.NoError(t, LoadInto(ctx, gw, dst))

			assert.Equal(t, src.Snapshot(), dst.Snapshot())
			contact, err := dst.Get("contact")
			require.NoError(t, err)
			assert.Equal(t, mib.String("NetworkAdmin2"), contact)
			usage, err := dst.Get("cpuUsage")
			require.NoError(t, err)
			assert.Equal(t, mib.Integer(0), usage)
		})
	}
}
