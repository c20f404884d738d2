package cli

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/minimib/internal/access"
	"github.com/roach88/minimib/internal/agent"
	"github.com/roach88/minimib/internal/mib"
	"github.com/roach88/minimib/internal/registry"
	"github.com/roach88/minimib/internal/schema"
	"github.com/roach88/minimib/internal/testutil"
	"github.com/roach88/minimib/internal/transport"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

type nopPersister struct{}

func (nopPersister) Save(context.Context, registry.Snapshot) error { return nil }

// startAgent serves the default schema on a loopback port and returns its
// host:port target.
func startAgent(t *testing.T) string {
	t.Helper()
	defs, err := schema.Default()
	require.NoError(t, err)
	reg, err := registry.New(defs, registry.WithClock(testutil.NewFakeClock()))
	require.NoError(t, err)

	base := mib.MustParseOID("1.3.6.1.3.28308")
	acl := access.New(map[string][]access.Rule{
		"reader": {{Subtree: base, Modes: access.Read}},
		"writer": {{Subtree: base, Modes: access.Read | access.Write}},
	})
	l, err := transport.Listen("127.0.0.1:0", agent.New(reg, acl, nopPersister{}), map[string]string{
		"public":  "reader",
		"private": "writer",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l.Addr().(*net.UDPAddr).String()
}
