package schema

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/minimib/internal/mib"
)

//go:embed default.cue
var defaultSchema []byte

// CompileError is a schema error with the CUE position it was found at.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default compiles the embedded default schema.
func Default() ([]mib.Definition, error) {
	return Compile(defaultSchema, "default.cue")
}

// DefaultSource returns the embedded default schema text.
func DefaultSource() []byte {
	return slices.Clone(defaultSchema)
}

// Load compiles the schema file at path.
func Load(path string) ([]mib.Definition, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Compile(src, path)
}

// Compile parses a CUE schema document into attribute definitions.
// Definitions are returned in declaration order.
func Compile(src []byte, filename string) ([]mib.Definition, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	baseVal := v.LookupPath(cue.ParsePath("base"))
	if !baseVal.Exists() {
		return nil, &CompileError{Field: "base", Message: "base is required", Pos: v.Pos()}
	}
	baseStr, err := baseVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	base, err := mib.ParseOID(baseStr)
	if err != nil {
		return nil, &CompileError{Field: "base", Message: err.Error(), Pos: baseVal.Pos()}
	}

	attrs := v.LookupPath(cue.ParsePath("attribute"))
	if !attrs.Exists() {
		return nil, &CompileError{Field: "attribute", Message: "at least one attribute is required", Pos: v.Pos()}
	}
	if err := attrs.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	iter, err := attrs.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var defs []mib.Definition
	for iter.Next() {
		def, err := compileAttribute(base, iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, &CompileError{Field: "attribute", Message: "at least one attribute is required", Pos: attrs.Pos()}
	}

	if err := checkDefinitions(defs, attrs); err != nil {
		return nil, err
	}
	return defs, nil
}

func compileAttribute(base mib.OID, name string, v cue.Value) (mib.Definition, error) {
	def := mib.Definition{Name: name}
	field := func(f string) string { return "attribute." + name + "." + f }

	oidStr, err := lookupString(v, "oid")
	if err != nil {
		return def, err
	}
	rel, err := mib.ParseOID(oidStr)
	if err != nil {
		return def, &CompileError{Field: field("oid"), Message: err.Error(), Pos: v.Pos()}
	}
	def.OID = base.Append(rel...)

	kindStr, err := lookupString(v, "kind")
	if err != nil {
		return def, err
	}
	if def.Kind, err = mib.ParseKind(kindStr); err != nil {
		return def, &CompileError{Field: field("kind"), Message: err.Error(), Pos: v.Pos()}
	}

	accessStr, err := lookupString(v, "access")
	if err != nil {
		return def, err
	}
	def.Access = mib.ReadOnly
	if accessStr == "read-write" {
		def.Access = mib.ReadWrite
	}

	storageStr, err := lookupString(v, "storage")
	if err != nil {
		return def, err
	}
	def.Storage = mib.Stored
	if storageStr == "computed" {
		def.Storage = mib.Computed
	}

	if def.Storage == mib.Computed {
		if def.Access == mib.ReadWrite {
			return def, &CompileError{Field: field("access"), Message: "computed attributes are always read-only", Pos: v.Pos()}
		}
		if def.Source, err = optionalString(v, "source"); err != nil {
			return def, err
		}
		if def.Source == "" {
			return def, &CompileError{Field: field("source"), Message: "computed attributes need a source", Pos: v.Pos()}
		}
	}

	if n, ok, err := optionalInt(v, "maxLength"); err != nil {
		return def, err
	} else if ok {
		def.MaxLength = int(n)
	}

	minVal, hasMin, err := optionalInt(v, "min")
	if err != nil {
		return def, err
	}
	maxVal, hasMax, err := optionalInt(v, "max")
	if err != nil {
		return def, err
	}
	if hasMin != hasMax {
		return def, &CompileError{Field: field("min"), Message: "min and max must be given together", Pos: v.Pos()}
	}
	if hasMin {
		if minVal > maxVal {
			return def, &CompileError{Field: field("min"), Message: fmt.Sprintf("min %d exceeds max %d", minVal, maxVal), Pos: v.Pos()}
		}
		def.HasRange, def.Min, def.Max = true, minVal, maxVal
	}

	if def.Mirror, err = optionalString(v, "mirror"); err != nil {
		return def, err
	}

	if def.Default, err = compileDefault(def, v); err != nil {
		return def, err
	}
	return def, nil
}

// compileDefault converts the optional default into a value of the
// attribute's kind. Stored attributes without one start at the zero value.
func compileDefault(def mib.Definition, v cue.Value) (mib.Value, error) {
	if def.Storage == mib.Computed {
		return nil, nil
	}
	dv := v.LookupPath(cue.ParsePath("default"))
	field := "attribute." + def.Name + ".default"
	if !present(dv) {
		switch def.Kind {
		case mib.KindString:
			return mib.String(""), nil
		case mib.KindInteger:
			return mib.Integer(0), nil
		default:
			return mib.TimeTicks(0), nil
		}
	}

	switch def.Kind {
	case mib.KindString:
		s, err := dv.String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "string attribute needs a string default", Pos: dv.Pos()}
		}
		return mib.String(s), nil
	case mib.KindInteger:
		n, err := dv.Int64()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "integer attribute needs an integer default", Pos: dv.Pos()}
		}
		return mib.Integer(n), nil
	default:
		n, err := dv.Int64()
		if err != nil || n < 0 {
			return nil, &CompileError{Field: field, Message: "timeticks attribute needs a non-negative default", Pos: dv.Pos()}
		}
		return mib.TimeTicks(n), nil
	}
}

// checkDefinitions enforces cross-attribute rules: distinct identifiers,
// mirrors that point at writable string-compatible peers, and defaults
// that pass their own validation.
func checkDefinitions(defs []mib.Definition, attrs cue.Value) error {
	byName := make(map[string]mib.Definition, len(defs))
	seen := make(map[string]string, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
		key := d.OID.String()
		if other, dup := seen[key]; dup {
			return &CompileError{
				Field:   "attribute." + d.Name + ".oid",
				Message: fmt.Sprintf("identifier %s already used by %s", key, other),
				Pos:     attrs.Pos(),
			}
		}
		seen[key] = d.Name
	}

	for _, d := range defs {
		if d.Mirror == "" {
			continue
		}
		field := "attribute." + d.Name + ".mirror"
		peer, ok := byName[d.Mirror]
		if !ok {
			return &CompileError{Field: field, Message: fmt.Sprintf("unknown attribute %q", d.Mirror), Pos: attrs.Pos()}
		}
		if peer.Name == d.Name {
			return &CompileError{Field: field, Message: "attribute cannot mirror itself", Pos: attrs.Pos()}
		}
		if !d.Persistent() || !peer.Persistent() {
			return &CompileError{Field: field, Message: "mirrored attributes must be stored and read-write", Pos: attrs.Pos()}
		}
		if d.Kind != peer.Kind {
			return &CompileError{Field: field, Message: fmt.Sprintf("kind %s does not match %s", d.Kind, peer.Kind), Pos: attrs.Pos()}
		}
	}
	return nil
}

// present reports whether an optional field was actually given a value.
// Unset optional fields of #Attribute are visible but not concrete.
func present(f cue.Value) bool {
	return f.Exists() && f.IsConcrete()
}

func lookupString(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if d, ok := f.Default(); ok {
		f = d
	}
	if !present(f) {
		return "", &CompileError{Field: path, Message: path + " is required", Pos: v.Pos()}
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !present(f) {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalInt(v cue.Value, path string) (int64, bool, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !present(f) {
		return 0, false, nil
	}
	n, err := f.Int64()
	if err != nil {
		return 0, false, formatCUEError(err)
	}
	return n, true, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
