package mib

// Access is the client-visible access mode of an attribute.
type Access int

const (
	// ReadOnly attributes reject client writes.
	ReadOnly Access = iota + 1
	// ReadWrite attributes accept validated client writes.
	ReadWrite
)

func (a Access) String() string {
	if a == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

// Storage selects where an attribute's value comes from.
type Storage int

const (
	// Stored attributes hold their current value in the registry.
	Stored Storage = iota + 1
	// Computed attributes derive their value at read time.
	Computed
)

func (s Storage) String() string {
	if s == Computed {
		return "computed"
	}
	return "stored"
}

// Definition describes one attribute of the schema.
// Definitions are produced by the schema compiler and consumed by the registry.
type Definition struct {
	Name    string
	OID     OID
	Kind    Kind
	Access  Access
	Storage Storage

	// Default is the initial value of a stored attribute.
	Default Value

	// MaxLength bounds string values in characters. Zero means unbounded.
	MaxLength int

	// Min and Max bound integer values when HasRange is set.
	HasRange bool
	Min      int64
	Max      int64

	// Mirror names a stored attribute that is written together with this one.
	Mirror string

	// Source names the derivation of a computed attribute.
	Source string
}

// Persistent reports whether the attribute is saved to durable storage.
// Only stored, read-write attributes ever are.
func (d Definition) Persistent() bool {
	return d.Storage == Stored && d.Access == ReadWrite
}
