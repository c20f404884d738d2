package mib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    OID
		wantErr bool
	}{
		{"plain", "1.3.6.1", OID{1, 3, 6, 1}, false},
		{"leading dot", ".1.3.6.1.3.28308", OID{1, 3, 6, 1, 3, 28308}, false},
		{"single", "0", OID{0}, false},
		{"empty", "", nil, true},
		{"negative", "1.-3", nil, true},
		{"trailing dot", "1.3.", nil, true},
		{"overflow", "1.4294967296", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOID_String(t *testing.T) {
	oid := OID{1, 3, 6, 1, 3, 28308, 1, 1, 0}
	assert.Equal(t, "1.3.6.1.3.28308.1.1.0", oid.String())
	assert.Equal(t, ".1.3.6.1.3.28308.1.1.0", oid.Dotted())
}

func TestOID_Compare(t *testing.T) {
	a := MustParseOID("1.3.1")
	b := MustParseOID("1.3.1.1")
	c := MustParseOID("1.3.2")

	assert.Equal(t, -1, a.Compare(b), "prefix sorts first")
	assert.Equal(t, -1, b.Compare(c), "1.3.1.1 < 1.3.2")
	assert.Equal(t, -1, a.Compare(c))
	assert.Equal(t, 1, c.Compare(b))
	assert.Equal(t, 0, a.Compare(MustParseOID("1.3.1")))
	assert.Equal(t, 1, MustParseOID("1.10").Compare(MustParseOID("1.9")), "numeric, not textual")
}

func TestOID_HasPrefix(t *testing.T) {
	oid := MustParseOID("1.3.6.1.3.28308.1.4.0")

	assert.True(t, oid.HasPrefix(MustParseOID("1.3.6.1.3.28308")))
	assert.True(t, oid.HasPrefix(oid), "equal counts as ancestor")
	assert.False(t, oid.HasPrefix(MustParseOID("1.3.6.1.3.2830")), "component-wise, not textual")
	assert.False(t, MustParseOID("1.3").HasPrefix(oid))
}

func TestOID_AppendDoesNotAlias(t *testing.T) {
	base := make(OID, 2, 8)
	base[0], base[1] = 1, 3

	a := base.Append(1)
	b := base.Append(2)

	assert.Equal(t, OID{1, 3, 1}, a)
	assert.Equal(t, OID{1, 3, 2}, b)
}
