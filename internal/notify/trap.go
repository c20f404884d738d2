package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/roach88/minimib/internal/mib"
)

// Well-known identifiers carried in every v2c trap.
var (
	SysUpTimeOID   = mib.MustParseOID("1.3.6.1.2.1.1.3.0")
	SnmpTrapOIDOID = mib.MustParseOID("1.3.6.1.6.3.1.1.4.1.0")
)

// TrapConfig addresses the trap receiver and names the identifiers the
// payload is reported under.
type TrapConfig struct {
	Target    string
	Port      uint16
	Community string
	Timeout   time.Duration
	Retries   int

	TrapOID      mib.OID
	ValueOID     mib.OID
	ThresholdOID mib.OID
	EmailOID     mib.OID
}

// TrapSink sends SNMPv2c traps.
type TrapSink struct {
	cfg TrapConfig
}

// NewTrapSink creates a trap sink.
func NewTrapSink(cfg TrapConfig) *TrapSink {
	if cfg.Community == "" {
		cfg.Community = "public"
	}
	if cfg.Port == 0 {
		cfg.Port = 162
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &TrapSink{cfg: cfg}
}

// Name implements Sink.
func (s *TrapSink) Name() string { return "trap" }

// Send implements Sink.
func (s *TrapSink) Send(ctx context.Context, ev Event) error {
	g := &gosnmp.GoSNMP{
		Target:    s.cfg.Target,
		Port:      s.cfg.Port,
		Community: s.cfg.Community,
		Version:   gosnmp.Version2c,
		Timeout:   s.cfg.Timeout,
		Retries:   s.cfg.Retries,
		Context:   ctx,
	}
	if err := g.Connect(); err != nil {
		return fmt.Errorf("connect %s:%d: %w", s.cfg.Target, s.cfg.Port, err)
	}
	defer g.Conn.Close()

	if _, err := g.SendTrap(gosnmp.SnmpTrap{Variables: s.Variables(ev)}); err != nil {
		return fmt.Errorf("send trap: %w", err)
	}
	return nil
}

// Variables builds the trap varbinds for ev. Identifiers left unset in the
// config are omitted.
func (s *TrapSink) Variables(ev Event) []gosnmp.SnmpPDU {
	vars := []gosnmp.SnmpPDU{
		{Name: SysUpTimeOID.Dotted(), Type: gosnmp.TimeTicks, Value: uint32(ev.Uptime)},
		{Name: SnmpTrapOIDOID.Dotted(), Type: gosnmp.ObjectIdentifier, Value: s.cfg.TrapOID.Dotted()},
	}
	if len(s.cfg.ValueOID) > 0 {
		vars = append(vars, gosnmp.SnmpPDU{Name: s.cfg.ValueOID.Dotted(), Type: gosnmp.Integer, Value: int(ev.Value)})
	}
	if len(s.cfg.ThresholdOID) > 0 {
		vars = append(vars, gosnmp.SnmpPDU{Name: s.cfg.ThresholdOID.Dotted(), Type: gosnmp.Integer, Value: int(ev.Threshold)})
	}
	if len(s.cfg.EmailOID) > 0 {
		vars = append(vars, gosnmp.SnmpPDU{Name: s.cfg.EmailOID.Dotted(), Type: gosnmp.OctetString, Value: ev.ManagerEmail})
	}
	return vars
}
