package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minimib/internal/access"
	"github.com/roach88/minimib/internal/agent"
	"github.com/roach88/minimib/internal/mib"
	"github.com/roach88/minimib/internal/registry"
	"github.com/roach88/minimib/internal/schema"
	"github.com/roach88/minimib/internal/testutil"
)

var base = mib.MustParseOID("1.3.6.1.3.28308")

const (
	oidManager   = ".1.3.6.1.3.28308.1.1.0"
	oidThreshold = ".1.3.6.1.3.28308.1.4.0"
	oidContact   = ".1.3.6.1.3.28308.1.5.0"
	oidMissing   = ".1.3.6.1.3.28308.9.0"
)

type nopPersister struct{}

func (nopPersister) Save(context.Context, registry.Snapshot) error { return nil }

type dropCounter struct {
	mu      sync.Mutex
	reasons map[string]int
}

func (d *dropCounter) ObservePacketDropped(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reasons == nil {
		d.reasons = map[string]int{}
	}
	d.reasons[reason]++
}

func (d *dropCounter) count(reason string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reasons[reason]
}

func newListener(t *testing.T) (*Listener, *dropCounter) {
	t.Helper()
	defs, err := schema.Default()
	require.NoError(t, err)
	reg, err := registry.New(defs, registry.WithClock(testutil.NewFakeClock()))
	require.NoError(t, err)
	acl := access.New(map[string][]access.Rule{
		"reader": {{Subtree: base, Modes: access.Read}},
		"writer": {{Subtree: base, Modes: access.Read | access.Write}},
	})
	h := agent.New(reg, acl, nopPersister{})

	drops := &dropCounter{}
	l, err := Listen("127.0.0.1:0", h, map[string]string{
		"public":  "reader",
		"private": "writer",
	}, WithObserver(drops))
	require.NoError(t, err)
	return l, drops
}

// serve starts l and returns a connected client for community.
func serve(t *testing.T, l *Listener) func(community string, version gosnmp.SnmpVersion) *gosnmp.GoSNMP {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	port := uint16(l.Addr().(*net.UDPAddr).Port)
	return func(community string, version gosnmp.SnmpVersion) *gosnmp.GoSNMP {
		g := &gosnmp.GoSNMP{
			Target:    "127.0.0.1",
			Port:      port,
			Community: community,
			Version:   version,
			Timeout:   2 * time.Second,
			Retries:   0,
		}
		require.NoError(t, g.Connect())
		t.Cleanup(func() { g.Conn.Close() })
		return g
	}
}

func TestListener_Get(t *testing.T) {
	l, _ := newListener(t)
	client := serve(t, l)("public", gosnmp.Version2c)

	res, err := client.Get([]string{oidManager, oidThreshold, oidMissing})
	require.NoError(t, err)
	require.Equal(t, gosnmp.NoError, res.Error)
	require.Len(t, res.Variables, 3)

	assert.Equal(t, gosnmp.OctetString, res.Variables[0].Type)
	assert.Equal(t, []byte("NetworkAdmin"), res.Variables[0].Value)
	assert.Equal(t, 80, res.Variables[1].Value)
	assert.Equal(t, gosnmp.NoSuchObject, res.Variables[2].Type)
}

func TestListener_GetV1Exception(t *testing.T) {
	l, _ := newListener(t)
	client := serve(t, l)("public", gosnmp.Version1)

	res, err := client.Get([]string{oidManager, oidMissing})
	require.NoError(t, err)
	assert.Equal(t, gosnmp.NoSuchName, res.Error)
	assert.EqualValues(t, 2, res.ErrorIndex)
}

func TestListener_Walk(t *testing.T) {
	l, _ := newListener(t)
	client := serve(t, l)("public", gosnmp.Version2c)

	pdus, err := client.WalkAll(base.Dotted())
	require.NoError(t, err)

	var names []string
	for _, p := range pdus {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{
		".1.3.6.1.3.28308.1.1.0",
		".1.3.6.1.3.28308.1.2.0",
		".1.3.6.1.3.28308.1.3.0",
		".1.3.6.1.3.28308.1.4.0",
		".1.3.6.1.3.28308.1.5.0",
		".1.3.6.1.3.28308.1.6.0",
	}, names)
	assert.Equal(t, gosnmp.TimeTicks, pdus[5].Type)
}

func TestListener_GetNextEndOfMibView(t *testing.T) {
	l, _ := newListener(t)
	client := serve(t, l)("public", gosnmp.Version2c)

	res, err := client.GetNext([]string{".1.3.6.1.3.28308.1.6.0"})
	require.NoError(t, err)
	require.Len(t, res.Variables, 1)
	assert.Equal(t, gosnmp.EndOfMibView, res.Variables[0].Type)
}

func TestListener_SetMirrorsContact(t *testing.T) {
	l, _ := newListener(t)
	dial := serve(t, l)
	writer := dial("private", gosnmp.Version2c)

	res, err := writer.Set([]gosnmp.SnmpPDU{{Name: oidManager, Type: gosnmp.OctetString, Value: "NetworkAdmin2"}})
	require.NoError(t, err)
	assert.Equal(t, gosnmp.NoError, res.Error)

	res, err = writer.Get([]string{oidContact})
	require.NoError(t, err)
	assert.Equal(t, []byte("NetworkAdmin2"), res.Variables[0].Value)
}

func TestListener_SetErrors(t *testing.T) {
	l, _ := newListener(t)
	dial := serve(t, l)
	writer := dial("private", gosnmp.Version2c)
	reader := dial("public", gosnmp.Version2c)

	tests := []struct {
		name   string
		client *gosnmp.GoSNMP
		pdus   []gosnmp.SnmpPDU
		want   gosnmp.SNMPError
		index  uint8
	}{
		{
			name:   "out of range",
			client: writer,
			pdus:   []gosnmp.SnmpPDU{{Name: oidThreshold, Type: gosnmp.Integer, Value: 150}},
			want:   gosnmp.WrongValue,
			index:  1,
		},
		{
			name:   "wrong type",
			client: writer,
			pdus:   []gosnmp.SnmpPDU{{Name: oidThreshold, Type: gosnmp.OctetString, Value: "high"}},
			want:   gosnmp.WrongType,
			index:  1,
		},
		{
			name:   "read only",
			client: writer,
			pdus:   []gosnmp.SnmpPDU{{Name: ".1.3.6.1.3.28308.1.3.0", Type: gosnmp.Integer, Value: 5}},
			want:   gosnmp.NotWritable,
			index:  1,
		},
		{
			name:   "unregistered",
			client: writer,
			pdus: []gosnmp.SnmpPDU{
				{Name: oidThreshold, Type: gosnmp.Integer, Value: 70},
				{Name: oidMissing, Type: gosnmp.Integer, Value: 1},
			},
			want:  gosnmp.NoCreation,
			index: 2,
		},
		{
			name:   "reader",
			client: reader,
			pdus:   []gosnmp.SnmpPDU{{Name: oidThreshold, Type: gosnmp.Integer, Value: 70}},
			want:   gosnmp.NoAccess,
			index:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.client.Set(tt.pdus)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Error)
			assert.Equal(t, tt.index, res.ErrorIndex)
		})
	}

	res, err := reader.Get([]string{oidThreshold})
	require.NoError(t, err)
	assert.Equal(t, 80, res.Variables[0].Value)
}

func TestListener_UnknownCommunityDropped(t *testing.T) {
	l, drops := newListener(t)
	client := serve(t, l)("guess", gosnmp.Version2c)
	client.Timeout = 200 * time.Millisecond

	_, err := client.Get([]string{oidManager})
	assert.Error(t, err)
	assert.Equal(t, 1, drops.count(DropCommunity))
}

func TestListener_ServeStopsOnCancel(t *testing.T) {
	l, _ := newListener(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestRespond_Drops(t *testing.T) {
	l, _ := newListener(t)
	defer l.Close()

	_, reason := l.respond(context.Background(), []byte{0x30, 0x03, 0x02, 0x01})
	assert.Equal(t, DropMalformed, reason)

	trap, err := (&gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		Community: "public",
		PDUType:   gosnmp.SNMPv2Trap,
		RequestID: 9,
		Variables: []gosnmp.SnmpPDU{{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(1)}},
	}).MarshalMsg()
	require.NoError(t, err)
	_, reason = l.respond(context.Background(), trap)
	assert.Equal(t, DropNotARequest, reason)
}

func TestRespond_GetBulkIsGenErr(t *testing.T) {
	l, _ := newListener(t)
	defer l.Close()

	req, err := (&gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		Community: "public",
		PDUType:   gosnmp.GetBulkRequest,
		RequestID: 11,
		Variables: []gosnmp.SnmpPDU{{Name: oidManager, Type: gosnmp.Null}},
	}).MarshalMsg()
	require.NoError(t, err)

	reply, reason := l.respond(context.Background(), req)
	require.Empty(t, reason)

	pkt, err := (&gosnmp.GoSNMP{}).SnmpDecodePacket(reply)
	require.NoError(t, err)
	assert.Equal(t, gosnmp.GetResponse, pkt.PDUType)
	assert.EqualValues(t, 11, pkt.RequestID)
	assert.Equal(t, gosnmp.GenErr, pkt.Error)
}

func TestRespond_UndecodableSetValueIsAuthorizedFirst(t *testing.T) {
	l, _ := newListener(t)
	defer l.Close()

	tests := []struct {
		community string
		want      gosnmp.SNMPError
	}{
		{"public", gosnmp.NoAccess},
		{"private", gosnmp.WrongType},
	}
	for _, tt := range tests {
		t.Run(tt.community, func(t *testing.T) {
			req, err := (&gosnmp.SnmpPacket{
				Version:   gosnmp.Version2c,
				Community: tt.community,
				PDUType:   gosnmp.SetRequest,
				RequestID: 21,
				Variables: []gosnmp.SnmpPDU{{Name: oidThreshold, Type: gosnmp.Counter32, Value: uint32(5)}},
			}).MarshalMsg()
			require.NoError(t, err)

			reply, reason := l.respond(context.Background(), req)
			require.Empty(t, reason)

			pkt, err := (&gosnmp.GoSNMP{}).SnmpDecodePacket(reply)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pkt.Error)
			assert.EqualValues(t, 1, pkt.ErrorIndex)
		})
	}
}
