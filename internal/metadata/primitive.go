package metadata

import (
	"database/sql"
	"reflect"
	"time"
)

// PrimitiveType is a conceptual scalar type.
type PrimitiveType string

const (
	Binary   PrimitiveType = "Binary"
	Boolean  PrimitiveType = "Boolean"
	Byte     PrimitiveType = "Byte"
	DateTime PrimitiveType = "DateTime"
	Decimal  PrimitiveType = "Decimal"
	Double   PrimitiveType = "Double"
	Guid     PrimitiveType = "Guid"
	Int16    PrimitiveType = "Int16"
	Int32    PrimitiveType = "Int32"
	Int64    PrimitiveType = "Int64"
	Single   PrimitiveType = "Single"
	String   PrimitiveType = "String"
	Time     PrimitiveType = "Time"
)

// Decimaler is implemented by Go types that should map to Decimal.
type Decimaler interface {
	DecimalString() string
}

var (
	timeType       = reflect.TypeOf(time.Time{})
	durationType   = reflect.TypeOf(time.Duration(0))
	bytesType      = reflect.TypeOf([]byte(nil))
	decimalerType  = reflect.TypeOf((*Decimaler)(nil)).Elem()
	nullStringType = reflect.TypeOf(sql.NullString{})
	nullInt64Type  = reflect.TypeOf(sql.NullInt64{})
	nullInt32Type  = reflect.TypeOf(sql.NullInt32{})
	nullInt16Type  = reflect.TypeOf(sql.NullInt16{})
	nullBoolType   = reflect.TypeOf(sql.NullBool{})
	nullFloatType  = reflect.TypeOf(sql.NullFloat64{})
	nullTimeType   = reflect.TypeOf(sql.NullTime{})
	nullByteType   = reflect.TypeOf(sql.NullByte{})
)

// PrimitiveTypeOf maps a Go type to a primitive type. nullable reports
// whether the Go type admits a missing value (pointers, sql.Null*, []byte).
// uint, uint64 and uintptr have no primitive type: Int64 cannot hold their
// upper half.
func PrimitiveTypeOf(t reflect.Type) (pt PrimitiveType, nullable bool, ok bool) {
	if t.Kind() == reflect.Pointer {
		pt, _, ok = PrimitiveTypeOf(t.Elem())
		return pt, true, ok
	}
	switch t {
	case timeType:
		return DateTime, false, true
	case durationType:
		return Time, false, true
	case bytesType:
		return Binary, true, true
	case nullStringType:
		return String, true, true
	case nullInt64Type:
		return Int64, true, true
	case nullInt32Type:
		return Int32, true, true
	case nullInt16Type:
		return Int16, true, true
	case nullBoolType:
		return Boolean, true, true
	case nullFloatType:
		return Double, true, true
	case nullTimeType:
		return DateTime, true, true
	case nullByteType:
		return Byte, true, true
	}
	if t.Implements(decimalerType) {
		return Decimal, false, true
	}
	if t.Kind() == reflect.Array && t.Len() == 16 && t.Elem().Kind() == reflect.Uint8 {
		return Guid, false, true
	}
	switch t.Kind() {
	case reflect.String:
		return String, false, true
	case reflect.Bool:
		return Boolean, false, true
	case reflect.Int, reflect.Int64, reflect.Uint32:
		return Int64, false, true
	case reflect.Int32, reflect.Uint16:
		return Int32, false, true
	case reflect.Int16, reflect.Int8:
		return Int16, false, true
	case reflect.Uint8:
		return Byte, false, true
	case reflect.Float32:
		return Single, false, true
	case reflect.Float64:
		return Double, false, true
	}
	return "", false, false
}

// IsPrimitive reports whether t maps to a primitive type.
func IsPrimitive(t reflect.Type) bool {
	_, _, ok := PrimitiveTypeOf(t)
	return ok
}

// SupportsLength reports whether length facets apply to the type.
func (p PrimitiveType) SupportsLength() bool {
	return p == String || p == Binary
}

// SupportsPrecision reports whether precision/scale facets apply.
func (p PrimitiveType) SupportsPrecision() bool {
	return p == Decimal || p == DateTime || p == Time
}

// IsInteger reports whether the type is an integer type.
func (p PrimitiveType) IsInteger() bool {
	switch p {
	case Byte, Int16, Int32, Int64:
		return true
	}
	return false
}
