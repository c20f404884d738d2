package registry

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/roach88/minimib/internal/mib"
)

// Clock supplies wall time to computed attributes.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Derivation computes a computed attribute's value at read time.
type Derivation func(start, now time.Time) mib.Value

// Uptime reports the time since the registry was created, in hundredths of
// a second. Wraps like sysUpTime does.
func Uptime(start, now time.Time) mib.Value {
	return mib.TimeTicks(uint32(now.Sub(start) / (10 * time.Millisecond)))
}

// Derivations maps computed attribute sources to their implementations.
var Derivations = map[string]Derivation{
	"uptime": Uptime,
}

// Pair is one identifier/value binding of a write batch.
type Pair struct {
	OID   mib.OID
	Value mib.Value
}

// Snapshot maps attribute names to values.
type Snapshot map[string]mib.Value

// CommitFunc receives the persistent values a batch would produce, before
// the batch becomes visible. Returning an error aborts the batch.
type CommitFunc func(Snapshot) error

type entry struct {
	def    mib.Definition
	derive Derivation
}

// Registry is the ordered set of attributes with their current values.
type Registry struct {
	space  *mib.Space
	byOID  map[string]*entry
	byName map[string]*entry
	clock  Clock
	start  time.Time

	writeMu sync.Mutex

	mu     sync.RWMutex
	values map[string]mib.Value
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used by computed attributes.
func WithClock(c Clock) Option {
	return func(r *Registry) {
		r.clock = c
	}
}

// New builds a registry from schema definitions. Stored attributes start at
// their schema default.
//
// Fails if identifiers collide or a computed attribute names an unknown
// derivation; both are fatal startup errors.
func New(defs []mib.Definition, opts ...Option) (*Registry, error) {
	r := &Registry{
		byOID:  make(map[string]*entry, len(defs)),
		byName: make(map[string]*entry, len(defs)),
		clock:  SystemClock{},
		values: make(map[string]mib.Value, len(defs)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.start = r.clock.Now()

	oids := make([]mib.OID, 0, len(defs))
	for _, def := range defs {
		if _, dup := r.byName[def.Name]; dup {
			return nil, fmt.Errorf("new registry: duplicate attribute %q", def.Name)
		}
		e := &entry{def: def}
		e.def.OID = def.OID.Clone()

		switch def.Storage {
		case mib.Computed:
			derive, ok := Derivations[def.Source]
			if !ok {
				return nil, fmt.Errorf("new registry: attribute %q: unknown source %q", def.Name, def.Source)
			}
			e.derive = derive
		default:
			v, err := check(def, def.Default)
			if err != nil {
				return nil, fmt.Errorf("new registry: attribute %q default: %w", def.Name, err)
			}
			r.values[def.Name] = v
		}

		r.byOID[def.OID.String()] = e
		r.byName[def.Name] = e
		oids = append(oids, def.OID)
	}

	space, err := mib.NewSpace(oids)
	if err != nil {
		return nil, fmt.Errorf("new registry: %w", err)
	}
	r.space = space
	return r, nil
}

// Space returns the fixed, ordered identifier space.
func (r *Registry) Space() *mib.Space {
	return r.space
}

// Definitions returns all attribute definitions in identifier order.
func (r *Registry) Definitions() []mib.Definition {
	oids := r.space.All()
	defs := make([]mib.Definition, len(oids))
	for i, oid := range oids {
		defs[i] = r.byOID[oid.String()].def
	}
	return defs
}

// Definition returns the attribute registered at oid.
func (r *Registry) Definition(oid mib.OID) (mib.Definition, bool) {
	e, ok := r.byOID[oid.String()]
	if !ok {
		return mib.Definition{}, false
	}
	return e.def, true
}

// Lookup returns the attribute with the given name.
func (r *Registry) Lookup(name string) (mib.Definition, bool) {
	e, ok := r.byName[name]
	if !ok {
		return mib.Definition{}, false
	}
	return e.def, true
}

// Read returns the current value at oid. Computed attributes are derived
// on every call.
func (r *Registry) Read(oid mib.OID) (mib.Value, error) {
	var (
		v   mib.Value
		err error
	)
	r.View(func(view *View) {
		v, err = view.Read(oid)
	})
	return v, err
}

// Get returns the current value of the named attribute.
func (r *Registry) Get(name string) (mib.Value, error) {
	var (
		v   mib.Value
		err error
	)
	r.View(func(view *View) {
		v, err = view.Get(name)
	})
	return v, err
}

// View is a consistent read-only view of the registry. No batch commits
// while it is open, so every read through it sees the same state.
type View struct {
	r *Registry
}

// View runs fn with the stored values held stable. fn must not block and
// must not call back into the registry.
func (r *Registry) View(fn func(view *View)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(&View{r: r})
}

// Read returns the value at oid as of the view.
func (v *View) Read(oid mib.OID) (mib.Value, error) {
	e, ok := v.r.byOID[oid.String()]
	if !ok {
		return nil, mib.Errorf(mib.StatusNoSuchObject, oid, "no attribute registered")
	}
	return v.r.read(e), nil
}

// Get returns the named attribute's value as of the view.
func (v *View) Get(name string) (mib.Value, error) {
	e, ok := v.r.byName[name]
	if !ok {
		return nil, mib.Errorf(mib.StatusNoSuchObject, nil, "no attribute named %q", name)
	}
	return v.r.read(e), nil
}

// read must be called with mu held.
func (r *Registry) read(e *entry) mib.Value {
	if e.derive != nil {
		return e.derive(r.start, r.clock.Now())
	}
	return r.values[e.def.Name]
}

// Write validates and applies a single value. Equivalent to a one-pair
// WriteBatch without persistence.
func (r *Registry) Write(oid mib.OID, v mib.Value) error {
	_, err := r.WriteBatch([]Pair{{OID: oid, Value: v}}, nil)
	return err
}

// BatchError reports the pair that stopped a batch.
type BatchError struct {
	// Index is the zero-based position of the failing pair.
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("pair %d: %v", e.Index+1, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// WriteBatch validates every pair in order and applies them all or none.
//
// On the first failing pair it returns a *BatchError wrapping that pair's
// *mib.Error; nothing is applied. When commit is non-nil it is called once
// with the resulting persistent values before they become visible; a
// commit error aborts the batch and is returned as is.
//
// A successful write to a mirrored attribute updates its peer in the same
// batch. On success the applied value of each pair is returned in pair
// order; later pairs win over earlier ones for the same attribute.
func (r *Registry) WriteBatch(pairs []Pair, commit CommitFunc) ([]mib.Value, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	staged := make(map[string]mib.Value, len(pairs))
	names := make([]string, len(pairs))
	for i, p := range pairs {
		e, ok := r.byOID[p.OID.String()]
		if !ok {
			return nil, &BatchError{Index: i, Err: mib.Errorf(mib.StatusNoSuchObject, p.OID, "no attribute registered")}
		}
		if e.def.Storage == mib.Computed || e.def.Access != mib.ReadWrite {
			return nil, &BatchError{Index: i, Err: mib.Errorf(mib.StatusNotWritable, p.OID, "%s is not writable", e.def.Name)}
		}
		v, err := check(e.def, p.Value)
		if err != nil {
			return nil, &BatchError{Index: i, Err: err}
		}
		staged[e.def.Name] = v
		names[i] = e.def.Name

		if e.def.Mirror != "" {
			peer := r.byName[e.def.Mirror]
			mv, err := check(peer.def, v)
			if err != nil {
				return nil, &BatchError{Index: i, Err: mib.Errorf(mib.StatusWrongValue, p.OID,
					"mirror %s rejects value: %v", peer.def.Name, err)}
			}
			staged[peer.def.Name] = mv
		}
	}

	if commit != nil {
		snap := r.Snapshot()
		maps.Copy(snap, staged)
		if err := commit(snap); err != nil {
			return nil, fmt.Errorf("commit batch: %w", err)
		}
	}

	r.mu.Lock()
	maps.Copy(r.values, staged)
	r.mu.Unlock()

	applied := make([]mib.Value, len(pairs))
	for i, name := range names {
		applied[i] = staged[name]
	}
	return applied, nil
}

// Snapshot returns the current values of every persistent attribute.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(Snapshot)
	for name, e := range r.byName {
		if e.def.Persistent() {
			snap[name] = r.values[name]
		}
	}
	return snap
}

// Restore applies previously persisted values. Unknown names,
// non-persistent attributes and values failing validation are skipped and
// returned; the schema default stays in place for them.
//
// Mirrored pairs are reconciled afterwards: the attribute that declares the
// mirror first in identifier order wins.
func (r *Registry) Restore(snap Snapshot) []string {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	var skipped []string
	for _, name := range slices.Sorted(maps.Keys(snap)) {
		e, ok := r.byName[name]
		if !ok || !e.def.Persistent() {
			skipped = append(skipped, name)
			continue
		}
		v, err := check(e.def, snap[name])
		if err != nil {
			slog.Warn("ignoring persisted value", "attribute", name, "error", err)
			skipped = append(skipped, name)
			continue
		}
		r.values[name] = v
	}

	reconciled := make(map[string]bool)
	for _, oid := range r.space.All() {
		e := r.byOID[oid.String()]
		if e.def.Mirror == "" || reconciled[e.def.Name] {
			continue
		}
		r.values[e.def.Mirror] = r.values[e.def.Name]
		reconciled[e.def.Name] = true
		reconciled[e.def.Mirror] = true
	}
	return skipped
}

// Tx is the view handed to Update callbacks. It may read any attribute and
// set stored attributes that clients cannot persist (for example a sampled
// metric).
type Tx struct {
	r *Registry
}

// Get returns the named attribute's value inside the update.
func (tx *Tx) Get(name string) (mib.Value, error) {
	e, ok := tx.r.byName[name]
	if !ok {
		return nil, mib.Errorf(mib.StatusNoSuchObject, nil, "no attribute named %q", name)
	}
	return tx.r.read(e), nil
}

// Set validates and stores v on the named attribute.
func (tx *Tx) Set(name string, v mib.Value) error {
	e, ok := tx.r.byName[name]
	if !ok {
		return mib.Errorf(mib.StatusNoSuchObject, nil, "no attribute named %q", name)
	}
	if e.def.Storage != mib.Stored || e.def.Persistent() {
		return mib.Errorf(mib.StatusNotWritable, e.def.OID, "%s is not owned by the agent", name)
	}
	checked, err := check(e.def, v)
	if err != nil {
		return err
	}
	tx.r.values[name] = checked
	return nil
}

// Update runs fn as one atomic read-modify-write step. fn must not block.
func (r *Registry) Update(fn func(tx *Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&Tx{r: r})
}
