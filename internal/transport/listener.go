package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/gosnmp/gosnmp"

	"github.com/roach88/minimib/internal/agent"
	"github.com/roach88/minimib/internal/mib"
)

// maxDatagram is the largest UDP payload accepted.
const maxDatagram = 65535

// Handler answers decoded requests.
type Handler interface {
	Handle(ctx context.Context, req agent.Request) agent.Response
}

// Observer counts packets dropped without a reply.
type Observer interface {
	ObservePacketDropped(reason string)
}

// Drop reasons reported to the Observer.
const (
	DropMalformed   = "malformed"
	DropCommunity   = "unknown_community"
	DropVersion     = "unsupported_version"
	DropNotARequest = "not_a_request"
)

// Listener serves requests on one UDP socket.
type Listener struct {
	conn        net.PacketConn
	handler     Handler
	communities map[string]string
	observer    Observer
}

// Option configures a Listener.
type Option func(*Listener)

// WithObserver reports dropped packets to o.
func WithObserver(o Observer) Option {
	return func(l *Listener) { l.observer = o }
}

// Listen binds addr. communities maps each accepted community string to
// the principal its requests run as.
func Listen(addr string, h Handler, communities map[string]string, opts ...Option) (*Listener, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	l := &Listener{
		conn:        conn,
		handler:     h,
		communities: communities,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Close releases the socket.
func (l *Listener) Close() error {
	return l.conn.Close()
}

// Serve answers packets until ctx is cancelled or the socket is closed.
// Packets are handled one at a time, in arrival order.
func (l *Listener) Serve(ctx context.Context) error {
	slog.Info("listening", "addr", l.Addr().String())

	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, peer, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("listener stopping: context cancelled")
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		reply, reason := l.respond(ctx, buf[:n])
		if reason != "" {
			slog.Debug("packet dropped", "peer", peer.String(), "reason", reason)
			if l.observer != nil {
				l.observer.ObservePacketDropped(reason)
			}
			continue
		}
		if _, err := l.conn.WriteTo(reply, peer); err != nil {
			slog.Warn("failed to send response", "peer", peer.String(), "error", err)
		}
	}
}

// respond decodes one datagram and encodes the reply. A non-empty reason
// means the packet is dropped.
func (l *Listener) respond(ctx context.Context, data []byte) ([]byte, string) {
	pkt, err := decode(data)
	if err != nil {
		return nil, DropMalformed
	}
	if pkt.Version != gosnmp.Version1 && pkt.Version != gosnmp.Version2c {
		return nil, DropVersion
	}
	principal, ok := l.communities[pkt.Community]
	if !ok {
		return nil, DropCommunity
	}

	out := &gosnmp.SnmpPacket{
		Version:   pkt.Version,
		Community: pkt.Community,
		PDUType:   gosnmp.GetResponse,
		RequestID: pkt.RequestID,
	}

	verb, ok := verbs[pkt.PDUType]
	switch {
	case ok:
		encodeResponse(out, pkt.Variables, l.dispatch(ctx, verb, principal, pkt.Variables))
	case pkt.PDUType == gosnmp.GetBulkRequest:
		out.Error = gosnmp.GenErr
		out.Variables = pkt.Variables
	default:
		return nil, DropNotARequest
	}

	reply, err := out.MarshalMsg()
	if err != nil {
		slog.Error("failed to encode response", "request_id", pkt.RequestID, "error", err)
		return nil, DropMalformed
	}
	return reply, ""
}

func (l *Listener) dispatch(ctx context.Context, verb agent.Verb, principal string, vars []gosnmp.SnmpPDU) agent.Response {
	req := agent.Request{
		Verb:      verb,
		Principal: principal,
		Bindings:  make([]agent.Binding, len(vars)),
	}
	for i, v := range vars {
		oid, err := mib.ParseOID(v.Name)
		if err != nil {
			return agent.Response{Status: mib.StatusGenError, FailingIndex: i + 1}
		}
		req.Bindings[i].OID = oid
		if verb != agent.VerbSet {
			continue
		}
		// An unmappable value stays nil: the handler checks access first
		// and the registry then rejects it as wrongType.
		val, err := fromPDU(v)
		if err != nil {
			slog.Debug("undecodable set value", "oid", v.Name, "error", err)
		}
		req.Bindings[i].Value = val
	}
	return l.handler.Handle(ctx, req)
}

// decode parses a datagram. Decoder panics on hostile input are turned
// into errors so one bad packet cannot stop the listener.
func decode(data []byte) (pkt *gosnmp.SnmpPacket, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("decode panic: %v", p)
		}
	}()
	return (&gosnmp.GoSNMP{}).SnmpDecodePacket(data)
}
