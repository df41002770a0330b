package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = ":"

// KeySerializer turns arbitrary extra parameters (filters, pagination) into a
// stable string. Two equal parameter sets must serialize identically.
type KeySerializer interface {
	Serialize(v any) string
}

// KeyBuilder builds repository cache keys of the form
//
//	prefix:operation:identifier[:hash]
//
// The hash segment only appears when the extra parameters are non-empty, which
// keeps the common no-filter keys short and predictable.
type KeyBuilder struct {
	prefix     string
	serializer KeySerializer
}

// NewKeyBuilder returns a KeyBuilder using the default serializer.
func NewKeyBuilder(prefix string) KeyBuilder {
	return KeyBuilder{prefix: prefix, serializer: NewDefaultKeySerializer()}
}

// WithSerializer returns a copy of b using s for extra parameters.
func (b KeyBuilder) WithSerializer(s KeySerializer) KeyBuilder {
	b.serializer = s
	return b
}

// Prefix returns the key prefix.
func (b KeyBuilder) Prefix() string {
	return b.prefix
}

// Build returns the cache key for operation on identifier with extra params.
func (b KeyBuilder) Build(operation, identifier string, extra any) string {
	parts := []string{b.prefix, operation, identifier}
	if !isEmptyParam(extra) {
		parts = append(parts, HashParams(b.serializer, extra))
	}
	return strings.Join(parts, KeySeparator)
}

// OperationPrefix returns the prefix shared by every key of operation,
// including the trailing separator.
func (b KeyBuilder) OperationPrefix(operation string) string {
	return b.prefix + KeySeparator + operation + KeySeparator
}

// HashParams serializes v and returns its xxhash as 16 hex characters.
func HashParams(s KeySerializer, v any) string {
	if s == nil {
		s = NewDefaultKeySerializer()
	}
	sum := xxhash.Sum64String(s.Serialize(v))
	return fmt.Sprintf("%016x", sum)
}

func isEmptyParam(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return true
		}
		return isEmptyParam(rv.Elem().Interface())
	}
	return false
}

// defaultKeySerializer implements KeySerializer using reflection.
// Maps are emitted with sorted keys so equal filter sets hash identically.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

func (s *defaultKeySerializer) Serialize(v any) string {
	return s.serializeValue(v)
}

func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	switch rt.Kind() {
	case reflect.Func:
		return fmt.Sprintf("func:%p", v)
	case reflect.Chan:
		return fmt.Sprintf("chan:%p", v)
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Interface:
		if rv.IsNil() {
			return "interface:nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return s.serializeList("slice", rv)
	case reflect.Array:
		return s.serializeList("array", rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)
	case reflect.Struct:
		return s.serializeStruct(rv, rt)
	case reflect.String:
		// quoted so "1" and 1 never collide
		return strconv.Quote(rv.String())
	}

	if isBasicKind(rt.Kind()) {
		return fmt.Sprintf("%v", v)
	}

	return s.jsonFallback(v)
}

func (s *defaultKeySerializer) serializeList(label string, rv reflect.Value) string {
	length := rv.Len()
	parts := make([]string, length)
	for i := 0; i < length; i++ {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}
	return fmt.Sprintf("%s[%d]:{%s}", label, length, strings.Join(parts, ","))
}

func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	type pair struct {
		key   string
		value string
	}

	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, pair{
			key:   s.serializeValue(iter.Key().Interface()),
			value: s.serializeValue(iter.Value().Interface()),
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.key + "=" + p.value
	}
	return fmt.Sprintf("map[%d]:{%s}", len(out), strings.Join(out, ","))
}

func (s *defaultKeySerializer) serializeStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		fv := rv.Field(i)
		if !fv.CanInterface() {
			continue
		}
		parts = append(parts, field.Name+":"+s.serializeValue(fv.Interface()))
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

func isBasicKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	}
	return false
}

func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}
