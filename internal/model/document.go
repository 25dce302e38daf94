// Package model holds the wire and on-disk types shared across the write
// pipeline, the oplog, the indices and the experiment layer.
package model

import "fmt"

// ReservedVectorsField carries per-embedder vectors on a Document. It is
// stripped from the lexical payload before indexing and diverted to the
// vector index.
const ReservedVectorsField = "_vectors"

// ReservedGeoField carries one or more {lat,lng} points used for geo filters.
const ReservedGeoField = "_geoloc"

// FieldKind discriminates the sum type a FieldValue holds.
type FieldKind int

const (
	KindText FieldKind = iota
	KindInteger
	KindFloat
	KindBool
	KindArray
	KindObject
	KindNull
)

// FieldValue is a sum type over the JSON-ish shapes a document field can take.
// Exactly one of the typed accessors is meaningful for a given Kind.
type FieldValue struct {
	Kind   FieldKind
	Text   string
	Int    int64
	Float  float64
	Bool   bool
	Array  []FieldValue
	Object map[string]FieldValue
}

func Text(v string) FieldValue           { return FieldValue{Kind: KindText, Text: v} }
func Integer(v int64) FieldValue         { return FieldValue{Kind: KindInteger, Int: v} }
func Float(v float64) FieldValue         { return FieldValue{Kind: KindFloat, Float: v} }
func Bool(v bool) FieldValue             { return FieldValue{Kind: KindBool, Bool: v} }
func Array(v []FieldValue) FieldValue    { return FieldValue{Kind: KindArray, Array: v} }
func Object(v map[string]FieldValue) FieldValue {
	return FieldValue{Kind: KindObject, Object: v}
}

// FromJSON converts a decoded JSON value (as produced by encoding/json with
// UseNumber off) into a FieldValue.
func FromJSON(v interface{}) FieldValue {
	switch t := v.(type) {
	case nil:
		return FieldValue{Kind: KindNull}
	case string:
		return Text(t)
	case bool:
		return Bool(t)
	case float64:
		if t == float64(int64(t)) {
			return Integer(int64(t))
		}
		return Float(t)
	case int:
		return Integer(int64(t))
	case int64:
		return Integer(t)
	case []interface{}:
		out := make([]FieldValue, len(t))
		for i, e := range t {
			out[i] = FromJSON(e)
		}
		return Array(out)
	case map[string]interface{}:
		out := make(map[string]FieldValue, len(t))
		for k, e := range t {
			out[k] = FromJSON(e)
		}
		return Object(out)
	default:
		return FieldValue{Kind: KindText, Text: fmt.Sprintf("%v", t)}
	}
}

// ToJSON converts a FieldValue back into a plain interface{} tree suitable
// for json.Marshal.
func (f FieldValue) ToJSON() interface{} {
	switch f.Kind {
	case KindText:
		return f.Text
	case KindInteger:
		return f.Int
	case KindFloat:
		return f.Float
	case KindBool:
		return f.Bool
	case KindArray:
		out := make([]interface{}, len(f.Array))
		for i, e := range f.Array {
			out[i] = e.ToJSON()
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(f.Object))
		for k, e := range f.Object {
			out[k] = e.ToJSON()
		}
		return out
	default:
		return nil
	}
}

// Document is a tenant-scoped record keyed by ID. Fields carries the raw
// mapping as decoded JSON (map[string]interface{}) rather than FieldValue
// trees throughout, since bluge and the vector extraction code both want to
// walk plain Go values; FieldValue exists for callers that need the typed
// sum-type view (e.g. validation).
type Document struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

// Vectors extracts and removes the reserved _vectors field from a copy of
// the document's fields, returning the per-embedder vectors found.
// The original Fields map is left untouched; callers receive the stripped
// copy to use as the lexical payload.
func (d *Document) SplitVectors() (lexicalFields map[string]interface{}, vectors map[string][]float32) {
	lexicalFields = make(map[string]interface{}, len(d.Fields))
	for k, v := range d.Fields {
		if k == ReservedVectorsField {
			continue
		}
		lexicalFields[k] = v
	}
	vectors = map[string][]float32{}
	raw, ok := d.Fields[ReservedVectorsField]
	if !ok {
		return lexicalFields, vectors
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return lexicalFields, vectors
	}
	for embedder, v := range m {
		arr, ok := v.([]interface{})
		if !ok {
			continue
		}
		vec := make([]float32, len(arr))
		for i, e := range arr {
			if f, ok := e.(float64); ok {
				vec[i] = float32(f)
			}
		}
		vectors[embedder] = vec
	}
	return lexicalFields, vectors
}

// GeoPoint is a single {lat,lng} pair used by the reserved _geoloc field.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeoPoints parses the reserved _geoloc field, which may be a single object
// or an array of objects.
func GeoPoints(fields map[string]interface{}) []GeoPoint {
	raw, ok := fields[ReservedGeoField]
	if !ok {
		return nil
	}
	parseOne := func(v interface{}) (GeoPoint, bool) {
		m, ok := v.(map[string]interface{})
		if !ok {
			return GeoPoint{}, false
		}
		lat, _ := m["lat"].(float64)
		lng, _ := m["lng"].(float64)
		return GeoPoint{Lat: lat, Lng: lng}, true
	}
	switch t := raw.(type) {
	case map[string]interface{}:
		if p, ok := parseOne(t); ok {
			return []GeoPoint{p}
		}
	case []interface{}:
		out := make([]GeoPoint, 0, len(t))
		for _, e := range t {
			if p, ok := parseOne(e); ok {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}
