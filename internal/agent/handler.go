package agent

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/minimib/internal/access"
	"github.com/roach88/minimib/internal/mib"
	"github.com/roach88/minimib/internal/registry"
)

// Persister durably stores the persistent attribute values.
type Persister interface {
	Save(ctx context.Context, snap registry.Snapshot) error
}

// Observer is notified of every handled request.
type Observer interface {
	ObserveRequest(verb string, status mib.Status)
}

// Handler serves GET, GETNEXT and SET against one registry.
// Safe for concurrent use: batches commit under the registry's write lock
// and each request reads its bindings from a single registry view.
type Handler struct {
	reg      *registry.Registry
	acl      *access.Controller
	persist  Persister
	observer Observer
}

// Option configures a Handler.
type Option func(*Handler)

// WithObserver reports every request outcome to o.
func WithObserver(o Observer) Option {
	return func(h *Handler) {
		h.observer = o
	}
}

// New creates a handler. persist may be nil, in which case successful SETs
// are only applied in memory.
func New(reg *registry.Registry, acl *access.Controller, persist Persister, opts ...Option) *Handler {
	h := &Handler{reg: reg, acl: acl, persist: persist}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle dispatches the request by verb.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	var resp Response
	switch req.Verb {
	case VerbGet:
		resp = h.get(req)
	case VerbGetNext:
		resp = h.getNext(req)
	case VerbSet:
		resp = h.set(ctx, req)
	default:
		resp = Response{Status: mib.StatusGenError, Bindings: echo(req.Bindings)}
	}

	slog.Debug("request handled",
		"verb", req.Verb,
		"principal", req.Principal,
		"bindings", len(req.Bindings),
		"status", resp.Status,
		"failing_index", resp.FailingIndex,
	)
	if h.observer != nil {
		h.observer.ObserveRequest(req.Verb.String(), resp.Status)
	}
	return resp
}

// get resolves each identifier independently; failures stay per binding.
// All bindings are read from one view so a concurrent SET is seen whole or
// not at all.
func (h *Handler) get(req Request) Response {
	out := make([]Binding, len(req.Bindings))
	h.reg.View(func(view *registry.View) {
		for i, b := range req.Bindings {
			out[i] = h.readAt(view, req.Principal, b.OID)
		}
	})
	return Response{Status: mib.StatusSuccess, Bindings: out}
}

func (h *Handler) readAt(view *registry.View, principal string, oid mib.OID) Binding {
	if !h.acl.Authorize(principal, oid, access.Read) {
		return Binding{OID: oid, Exception: mib.StatusNoAccess}
	}
	v, err := view.Read(oid)
	if err != nil {
		return Binding{OID: oid, Exception: mib.StatusOf(err)}
	}
	return Binding{OID: oid, Value: v}
}

// getNext walks forward from each cursor, skipping identifiers the
// principal cannot read, until a readable one is found or the space ends.
func (h *Handler) getNext(req Request) Response {
	space := h.reg.Space()
	out := make([]Binding, len(req.Bindings))
	h.reg.View(func(view *registry.View) {
		for i, b := range req.Bindings {
			out[i] = Binding{OID: b.OID, Exception: mib.StatusEndOfSpace}
			cursor := b.OID
			for {
				next, ok := space.Next(cursor)
				if !ok {
					break
				}
				if h.acl.Authorize(req.Principal, next, access.Read) {
					out[i] = h.readAt(view, req.Principal, next)
					break
				}
				cursor = next
			}
		}
	})
	return Response{Status: mib.StatusSuccess, Bindings: out}
}

// set authorizes the whole batch, then validates and applies it as one
// unit. A successful batch is saved exactly once before it becomes visible.
func (h *Handler) set(ctx context.Context, req Request) Response {
	oids := make([]mib.OID, len(req.Bindings))
	pairs := make([]registry.Pair, len(req.Bindings))
	for i, b := range req.Bindings {
		oids[i] = b.OID
		pairs[i] = registry.Pair{OID: b.OID, Value: b.Value}
	}

	if denied := h.acl.AuthorizeAll(req.Principal, oids, access.Write); denied >= 0 {
		slog.Info("set rejected: no write access",
			"principal", req.Principal,
			"oid", oids[denied],
		)
		return Response{Status: mib.StatusNoAccess, FailingIndex: denied + 1, Bindings: echo(req.Bindings)}
	}

	var commit registry.CommitFunc
	if h.persist != nil {
		commit = func(snap registry.Snapshot) error {
			return h.persist.Save(ctx, snap)
		}
	}

	applied, err := h.reg.WriteBatch(pairs, commit)
	if err != nil {
		status := mib.StatusOf(err)
		resp := Response{Status: status, Bindings: echo(req.Bindings)}
		var batchErr *registry.BatchError
		if errors.As(err, &batchErr) {
			resp.FailingIndex = batchErr.Index + 1
		}
		if status == mib.StatusGenError {
			slog.Error("set failed", "principal", req.Principal, "error", err)
		} else {
			slog.Info("set rejected", "principal", req.Principal, "status", status, "index", resp.FailingIndex, "error", err)
		}
		return resp
	}

	out := make([]Binding, len(req.Bindings))
	for i, b := range req.Bindings {
		out[i] = Binding{OID: b.OID, Value: applied[i]}
	}
	return Response{Status: mib.StatusSuccess, Bindings: out}
}

func echo(in []Binding) []Binding {
	out := make([]Binding, len(in))
	copy(out, in)
	return out
}
