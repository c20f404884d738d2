package cli

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/spf13/cobra"

	"github.com/roach88/minimib/internal/mib"
)

// ClientOptions holds the connection flags shared by get, getnext, walk and set.
type ClientOptions struct {
	*RootOptions
	Target    string
	Community string
	Version   string // "1" | "2c"
	Timeout   time.Duration
	Retries   int
}

// VarBindView is one variable binding as printed by the client commands.
type VarBindView struct {
	OID   string `json:"oid"`
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// String renders the binding the way net-snmp tools do: "oid = TYPE: value".
func (v VarBindView) String() string {
	if v.Value == "" && isException(v.Type) {
		return fmt.Sprintf("%s = %s", v.OID, v.Type)
	}
	return fmt.Sprintf("%s = %s: %s", v.OID, v.Type, v.Value)
}

func isException(t string) bool {
	switch t {
	case "NoSuchObject", "NoSuchInstance", "EndOfMibView", "NULL":
		return true
	}
	return false
}

func addClientFlags(cmd *cobra.Command, opts *ClientOptions, defaultCommunity string) {
	cmd.Flags().StringVarP(&opts.Target, "target", "t", "127.0.0.1:161", "agent address (host[:port])")
	cmd.Flags().StringVarP(&opts.Community, "community", "c", defaultCommunity, "community string")
	cmd.Flags().StringVar(&opts.Version, "snmp-version", "2c", "protocol version (1|2c)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 2*time.Second, "per-request timeout")
	cmd.Flags().IntVar(&opts.Retries, "retries", 1, "retries after a timeout")
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClientOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "get <oid>...",
		Short: "Fetch attributes by exact identifier",
		Example: `  minimib get 1.3.6.1.3.28308.1.3.0
  minimib get --target 10.0.0.5:1161 1.3.6.1.3.28308.1.1.0 1.3.6.1.3.28308.1.4.0`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(opts, cmd, func(g *gosnmp.GoSNMP) ([]gosnmp.SnmpPDU, error) {
				oids, err := dottedOIDs(args)
				if err != nil {
					return nil, err
				}
				return checkPacket(g.Get(oids))
			})
		},
	}
	addClientFlags(cmd, opts, "public")
	return cmd
}

// NewGetNextCommand creates the getnext command.
func NewGetNextCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClientOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:           "getnext <oid>...",
		Short:         "Fetch the next attribute after each identifier",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(opts, cmd, func(g *gosnmp.GoSNMP) ([]gosnmp.SnmpPDU, error) {
				oids, err := dottedOIDs(args)
				if err != nil {
					return nil, err
				}
				return checkPacket(g.GetNext(oids))
			})
		},
	}
	addClientFlags(cmd, opts, "public")
	return cmd
}

// NewWalkCommand creates the walk command.
func NewWalkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClientOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "walk [root-oid]",
		Short: "Walk a subtree with repeated GETNEXT",
		Long: `Walk every readable attribute below root-oid, in identifier order.
The root defaults to the agent's attribute subtree.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "1.3.6.1.3.28308"
			if len(args) == 1 {
				root = args[0]
			}
			return runClient(opts, cmd, func(g *gosnmp.GoSNMP) ([]gosnmp.SnmpPDU, error) {
				oids, err := dottedOIDs([]string{root})
				if err != nil {
					return nil, err
				}
				return g.WalkAll(oids[0])
			})
		},
	}
	addClientFlags(cmd, opts, "public")
	return cmd
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClientOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "set <oid> <type> <value> [<oid> <type> <value>]...",
		Short: "Write attributes as one atomic batch",
		Long: `Write one or more attributes in a single SET request. Either every
binding is applied or none is.

Types: s (string), i (integer), t (timeticks).

Flags go before the first identifier; everything after it is read as
bindings, so negative values need no escaping.`,
		Example: `  minimib set -c private 1.3.6.1.3.28308.1.4.0 i 75
  minimib set 1.3.6.1.3.28308.1.4.0 i -5`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%3 != 0 {
				return fmt.Errorf("set takes oid type value triples, got %d argument(s)", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			pdus, err := parseSetArgs(args)
			if err != nil {
				return usageError(opts.RootOptions, cmd, err)
			}
			return runClient(opts, cmd, func(g *gosnmp.GoSNMP) ([]gosnmp.SnmpPDU, error) {
				return checkPacket(g.Set(pdus))
			})
		},
	}
	addClientFlags(cmd, opts, "private")
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func runClient(opts *ClientOptions, cmd *cobra.Command, do func(*gosnmp.GoSNMP) ([]gosnmp.SnmpPDU, error)) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	g, err := newSNMPClient(opts)
	if err != nil {
		return usageError(opts.RootOptions, cmd, err)
	}
	g.Context = cmd.Context()

	formatter.VerboseLog("Connecting to %s:%d (v%s)", g.Target, g.Port, opts.Version)
	if err := g.Connect(); err != nil {
		_ = formatter.Error(ErrCodeTransport, err.Error(), nil)
		return WrapExitError(ExitFailure, "connect", err)
	}
	defer g.Conn.Close()

	pdus, err := do(g)
	if err != nil {
		var (
			se *statusError
			ae *argError
		)
		switch {
		case errors.As(err, &se):
			_ = formatter.Error(ErrCodeAgentStatus, se.Error(), map[string]any{"status": se.Status.String(), "index": se.Index})
			return WrapExitError(ExitFailure, "request failed", err)
		case errors.As(err, &ae):
			return usageError(opts.RootOptions, cmd, err)
		}
		_ = formatter.Error(ErrCodeTransport, err.Error(), nil)
		return WrapExitError(ExitFailure, "request failed", err)
	}

	views := make([]VarBindView, len(pdus))
	for i, p := range pdus {
		views[i] = viewPDU(p)
	}

	if formatter.Format == "json" {
		return formatter.Success(views, "")
	}
	var b strings.Builder
	for _, v := range views {
		b.WriteString(v.String())
		b.WriteByte('\n')
	}
	return formatter.Success(nil, b.String())
}

func newSNMPClient(opts *ClientOptions) (*gosnmp.GoSNMP, error) {
	host, port, err := splitTarget(opts.Target)
	if err != nil {
		return nil, err
	}
	var version gosnmp.SnmpVersion
	switch opts.Version {
	case "1":
		version = gosnmp.Version1
	case "2c":
		version = gosnmp.Version2c
	default:
		return nil, argErrorf("unsupported snmp version %q (want 1 or 2c)", opts.Version)
	}
	return &gosnmp.GoSNMP{
		Target:    host,
		Port:      port,
		Community: opts.Community,
		Version:   version,
		Timeout:   opts.Timeout,
		Retries:   opts.Retries,
		MaxOids:   gosnmp.MaxOids,
	}, nil
}

func splitTarget(target string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		// No port given.
		return target, 161, nil
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, argErrorf("invalid port in target %q", target)
	}
	return host, uint16(port), nil
}

func dottedOIDs(args []string) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		oid, err := mib.ParseOID(strings.TrimPrefix(a, "."))
		if err != nil {
			return nil, argErrorf("%v", err)
		}
		out[i] = oid.Dotted()
	}
	return out, nil
}

func parseSetArgs(args []string) ([]gosnmp.SnmpPDU, error) {
	var pdus []gosnmp.SnmpPDU
	for i := 0; i+2 < len(args); i += 3 {
		oids, err := dottedOIDs(args[i : i+1])
		if err != nil {
			return nil, err
		}
		pdu := gosnmp.SnmpPDU{Name: oids[0]}
		value := args[i+2]
		switch args[i+1] {
		case "s":
			pdu.Type, pdu.Value = gosnmp.OctetString, value
		case "i":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, argErrorf("binding %d: %q is not an integer", i/3+1, value)
			}
			pdu.Type, pdu.Value = gosnmp.Integer, n
		case "t":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return nil, argErrorf("binding %d: %q is not a timeticks value", i/3+1, value)
			}
			pdu.Type, pdu.Value = gosnmp.TimeTicks, uint32(n)
		default:
			return nil, argErrorf("binding %d: unknown type %q (want s, i or t)", i/3+1, args[i+1])
		}
		pdus = append(pdus, pdu)
	}
	return pdus, nil
}

func viewPDU(p gosnmp.SnmpPDU) VarBindView {
	v := VarBindView{OID: strings.TrimPrefix(p.Name, ".")}
	switch p.Type {
	case gosnmp.OctetString:
		v.Type = "STRING"
		switch b := p.Value.(type) {
		case []byte:
			v.Value = string(b)
		case string:
			v.Value = b
		}
	case gosnmp.Integer:
		v.Type = "INTEGER"
		v.Value = fmt.Sprint(p.Value)
	case gosnmp.TimeTicks:
		v.Type = "Timeticks"
		v.Value = fmt.Sprint(p.Value)
	case gosnmp.NoSuchObject:
		v.Type = "NoSuchObject"
	case gosnmp.NoSuchInstance:
		v.Type = "NoSuchInstance"
	case gosnmp.EndOfMibView:
		v.Type = "EndOfMibView"
	case gosnmp.Null:
		v.Type = "NULL"
	default:
		v.Type = p.Type.String()
		v.Value = fmt.Sprint(p.Value)
	}
	return v
}

// statusError is an error status returned by the agent.
type statusError struct {
	Status gosnmp.SNMPError
	Index  uint8
}

func (e *statusError) Error() string {
	return fmt.Sprintf("agent returned %s (index %d)", e.Status, e.Index)
}

func checkPacket(pkt *gosnmp.SnmpPacket, err error) ([]gosnmp.SnmpPDU, error) {
	if err != nil {
		return nil, err
	}
	if pkt.Error != gosnmp.NoError {
		return nil, &statusError{Status: pkt.Error, Index: pkt.ErrorIndex}
	}
	return pkt.Variables, nil
}

// argError marks malformed command arguments (exit code 2).
type argError struct{ msg string }

func (e *argError) Error() string { return e.msg }

func argErrorf(format string, args ...any) error {
	return &argError{msg: fmt.Sprintf(format, args...)}
}

func usageError(opts *RootOptions, cmd *cobra.Command, err error) error {
	formatter := newFormatter(opts, cmd)
	_ = formatter.Error(ErrCodeArgs, err.Error(), nil)
	return WrapExitError(ExitCommandError, "invalid arguments", err)
}
