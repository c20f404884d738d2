package registry

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/minimib/internal/mib"
)

// check validates v against the attribute definition and returns the value
// that would be stored. Strings are NFC-normalized before their length is
// measured in characters.
func check(def mib.Definition, v mib.Value) (mib.Value, error) {
	if v == nil || v.Kind() != def.Kind {
		return nil, mib.Errorf(mib.StatusWrongType, def.OID,
			"%s expects %s, got %s", def.Name, def.Kind, kindName(v))
	}

	switch val := v.(type) {
	case mib.String:
		s := norm.NFC.String(string(val))
		if !utf8.ValidString(s) {
			return nil, mib.Errorf(mib.StatusWrongValue, def.OID, "%s is not valid UTF-8", def.Name)
		}
		if def.MaxLength > 0 {
			if n := utf8.RuneCountInString(s); n > def.MaxLength {
				return nil, mib.Errorf(mib.StatusWrongValue, def.OID,
					"%s length %d exceeds %d", def.Name, n, def.MaxLength)
			}
		}
		return mib.String(s), nil
	case mib.Integer:
		if def.HasRange && (int64(val) < def.Min || int64(val) > def.Max) {
			return nil, mib.Errorf(mib.StatusWrongValue, def.OID,
				"%s value %d outside %d..%d", def.Name, int64(val), def.Min, def.Max)
		}
		return val, nil
	}
	return v, nil
}

func kindName(v mib.Value) string {
	if v == nil {
		return "null"
	}
	return v.Kind().String()
}
