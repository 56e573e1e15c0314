package sqlite

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/provider"
)

// Default precision and scale for decimals without explicit facets.
const (
	DefaultDecimalPrecision uint8 = 18
	DefaultDecimalScale     uint8 = 2
)

// storeTypes lists the type names ParseStoreType accepts. SQLite is lenient
// about type names; the manifest is not.
var storeTypes = map[string]bool{
	"INTEGER":  true,
	"BIGINT":   true,
	"SMALLINT": true,
	"TINYINT":  true,
	"BOOLEAN":  true,
	"REAL":     true,
	"FLOAT":    true,
	"DOUBLE":   true,
	"NUMERIC":  true,
	"DECIMAL":  true,
	"TEXT":     true,
	"VARCHAR":  true,
	"NVARCHAR": true,
	"CHAR":     true,
	"NCHAR":    true,
	"BLOB":     true,
	"DATETIME": true,
	"DATE":     true,
	"TIME":     true,
	"GUID":     true,
}

var storeTypePattern = regexp.MustCompile(`^\s*([A-Za-z]+)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?\s*$`)

type manifest struct{}

var _ provider.Manifest = manifest{}

func (manifest) Token() string { return ManifestToken }

func (manifest) SupportsSchemas() bool { return false }

// MaxIdentifierLength returns 0: SQLite does not bound identifiers.
func (manifest) MaxIdentifierLength() int { return 0 }

func (manifest) StoreType(p *metadata.Property) (provider.StoreType, error) {
	switch p.Type {
	case metadata.Boolean:
		return provider.StoreType{Name: "BOOLEAN"}, nil
	case metadata.Byte:
		return provider.StoreType{Name: "TINYINT"}, nil
	case metadata.Int16:
		return provider.StoreType{Name: "SMALLINT"}, nil
	case metadata.Int32, metadata.Int64:
		// INTEGER is required for rowid aliasing of identity keys.
		return provider.StoreType{Name: "INTEGER"}, nil
	case metadata.Single, metadata.Double:
		return provider.StoreType{Name: "REAL"}, nil
	case metadata.Decimal:
		precision, scale := DefaultDecimalPrecision, DefaultDecimalScale
		if p.Precision != nil {
			precision = *p.Precision
		}
		if p.Scale != nil {
			scale = *p.Scale
		}
		return provider.StoreType{Name: "NUMERIC", Precision: &precision, Scale: &scale}, nil
	case metadata.DateTime:
		return provider.StoreType{Name: "DATETIME", Precision: p.Precision}, nil
	case metadata.Time:
		return provider.StoreType{Name: "TIME", Precision: p.Precision}, nil
	case metadata.Guid:
		return provider.StoreType{Name: "GUID"}, nil
	case metadata.String:
		return lengthType(p, "TEXT", "VARCHAR", "CHAR"), nil
	case metadata.Binary:
		return lengthType(p, "BLOB", "BLOB", "BLOB"), nil
	}
	return provider.StoreType{}, &provider.UnsupportedTypeError{Provider: InvariantName, Type: string(p.Type)}
}

func lengthType(p *metadata.Property, unbounded, variable, fixed string) provider.StoreType {
	if p.IsMaxLength || p.MaxLength == nil {
		return provider.StoreType{Name: unbounded}
	}
	n := *p.MaxLength
	name := variable
	if p.FixedLength != nil && *p.FixedLength {
		name = fixed
	}
	return provider.StoreType{Name: name, MaxLength: &n}
}

func (manifest) ParseStoreType(name string) (provider.StoreType, error) {
	m := storeTypePattern.FindStringSubmatch(name)
	if m == nil {
		return provider.StoreType{}, &provider.UnsupportedTypeError{Provider: InvariantName, Type: name}
	}
	base := strings.ToUpper(m[1])
	if !storeTypes[base] {
		return provider.StoreType{}, &provider.UnsupportedTypeError{Provider: InvariantName, Type: name}
	}
	st := provider.StoreType{Name: base}
	if m[2] == "" {
		return st, nil
	}
	first, err := strconv.Atoi(m[2])
	if err != nil {
		return provider.StoreType{}, fmt.Errorf("sqlite: store type %q: %w", name, err)
	}
	switch base {
	case "NUMERIC", "DECIMAL", "DATETIME", "TIME":
		if first > 255 {
			return provider.StoreType{}, fmt.Errorf("sqlite: store type %q: precision out of range", name)
		}
		precision := uint8(first)
		st.Precision = &precision
		if m[3] != "" {
			s, err := strconv.Atoi(m[3])
			if err != nil || s > first {
				return provider.StoreType{}, fmt.Errorf("sqlite: store type %q: invalid scale", name)
			}
			scale := uint8(s)
			st.Scale = &scale
		}
	default:
		if m[3] != "" {
			return provider.StoreType{}, fmt.Errorf("sqlite: store type %q: unexpected scale", name)
		}
		st.MaxLength = &first
	}
	return st, nil
}

// FormatStoreType renders a column type for DDL.
func FormatStoreType(c *metadata.Column) string {
	switch {
	case c.Precision != nil && c.Scale != nil:
		return fmt.Sprintf("%s(%d,%d)", c.StoreType, *c.Precision, *c.Scale)
	case c.Precision != nil:
		return fmt.Sprintf("%s(%d)", c.StoreType, *c.Precision)
	case c.MaxLength != nil:
		return fmt.Sprintf("%s(%d)", c.StoreType, *c.MaxLength)
	}
	return c.StoreType
}
