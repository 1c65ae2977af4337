// Package query turns untrusted list parameters (page, limit, sort, fields,
// keyword and field filters) into an immutable Descriptor that storage
// backends compile into their own query language.
//
// Only fields declared in a Schema can be filtered, sorted, searched or
// projected, and only the comparison tokens gt, gte, lt and lte are
// recognised inside brackets. Everything else is rejected with a validation
// error before any backend sees it.
package query

// Type is the value type of a schema field. It decides how raw parameter
// values are parsed and which operators apply.
type Type uint8

const (
	String Type = iota + 1
	Int
	Money
	Bool
	Time
	// Strings is a set of strings (e.g. product colors). Equality means
	// "contains".
	Strings
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Int:
		return "integer"
	case Money:
		return "decimal"
	case Bool:
		return "boolean"
	case Time:
		return "timestamp"
	case Strings:
		return "string set"
	default:
		return "unknown"
	}
}

// ordered reports whether range comparisons are meaningful for the type.
func (t Type) ordered() bool {
	return t == Int || t == Money || t == Time
}

func (t Type) textual() bool {
	return t == String || t == Strings
}

// IDField is the identifier field every schema exposes.
const IDField = "id"

// Field describes one queryable attribute.
type Field struct {
	Type Type
	// Column is the storage column name. Empty means same as the field name.
	Column string
}

// Schema is the whitelist of a collection.
type Schema struct {
	// Collection is the table or collection name.
	Collection string
	Fields     map[string]Field
	// Search lists the fields Builder.Search uses when called without
	// arguments.
	Search []string
	// DefaultSort is applied by Builder.Sort when no sort parameter is given,
	// in the same syntax as the parameter ("-createdAt").
	DefaultSort string
}

// Lookup returns the field declared under name.
func (s *Schema) Lookup(name string) (Field, bool) {
	f, ok := s.Fields[name]
	return f, ok
}

// Column returns the storage column for a declared field name.
func (s *Schema) Column(name string) string {
	if f, ok := s.Fields[name]; ok && f.Column != "" {
		return f.Column
	}
	return name
}
