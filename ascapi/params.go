package ascapi

import (
	"encoding"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/google/go-querystring/query"
)

// Common query parameters for JSON:API list endpoints.
type ListParams struct {
	// Filter values by attribute. Entries with nil values are dropped.
	Filter map[string]any

	// Comma-separated related resources to include
	Includes string

	// Page size. Zero means "not supplied", so an explicit limit of 0 can't be sent.
	Limit int

	Sort   string
	Cursor string
}

// Builds a nested parameter map from [ListParams]. Nil filter entries are removed, and unset fields are omitted entirely (never sent as empty placeholders). The caller's filter map is not modified.
func BuildParams(p ListParams) map[string]any {
	params := map[string]any{}

	filter := map[string]any{}
	for k, v := range p.Filter {
		if isNil(v) {
			continue
		}
		filter[k] = v
	}
	if len(filter) > 0 {
		params["filter"] = filter
	}
	if p.Includes != "" {
		params["include"] = p.Includes
	}
	if p.Limit > 0 {
		params["limit"] = p.Limit
	}
	if p.Sort != "" {
		params["sort"] = p.Sort
	}
	if p.Cursor != "" {
		params["cursor"] = p.Cursor
	}
	return params
}

// Encodes request parameters to URL query values.
//
// Supported inputs:
//   - nil: no parameters
//   - [url.Values]: used as-is
//   - [ListParams]: passed through [BuildParams]
//   - map[string]any (or other string-keyed maps): nested encoding, where maps become bracketed keys (`filter[name]=x`) and slices become `key[]=v`
//   - structs with `url` field tags: encoded with go-querystring
func EncodeParams(params any) (url.Values, error) {
	switch v := params.(type) {
	case nil:
		return nil, nil
	case url.Values:
		return v, nil
	case ListParams:
		return encodeNested(BuildParams(v))
	case *ListParams:
		if v == nil {
			return nil, nil
		}
		return encodeNested(BuildParams(*v))
	case map[string]any:
		return encodeNested(v)
	}

	ref := reflect.ValueOf(params)
	for ref.Kind() == reflect.Pointer {
		if ref.IsNil() {
			return nil, nil
		}
		ref = ref.Elem()
	}
	switch ref.Kind() {
	case reflect.Map:
		if ref.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("can't encode query params with key type: %s", ref.Type().Key())
		}
		m := make(map[string]any, ref.Len())
		iter := ref.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return encodeNested(m)
	case reflect.Struct:
		return query.Values(ref.Interface())
	}
	return nil, fmt.Errorf("can't encode query params of type: %T", params)
}

func encodeNested(m map[string]any) (url.Values, error) {
	out := make(url.Values)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := encodeValue(out, k, m[k]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeValue(out url.Values, key string, val any) error {
	if isNil(val) {
		out.Add(key, "")
		return nil
	}
	if s, ok := scalarString(val); ok {
		out.Add(key, s)
		return nil
	}

	ref := reflect.ValueOf(val)
	for ref.Kind() == reflect.Pointer || ref.Kind() == reflect.Interface {
		ref = ref.Elem()
	}
	switch ref.Kind() {
	case reflect.Map:
		if ref.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("can't encode query param '%s' with key type: %s", key, ref.Type().Key())
		}
		subKeys := make([]string, 0, ref.Len())
		for _, k := range ref.MapKeys() {
			subKeys = append(subKeys, k.String())
		}
		sort.Strings(subKeys)
		for _, sk := range subKeys {
			sub := ref.MapIndex(reflect.ValueOf(sk).Convert(ref.Type().Key())).Interface()
			if err := encodeValue(out, key+"["+sk+"]", sub); err != nil {
				return err
			}
		}
		return nil
	case reflect.Slice, reflect.Array:
		for i := 0; i < ref.Len(); i++ {
			if err := encodeValue(out, key+"[]", ref.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("can't encode query param '%s' with type: %T", key, val)
}

func scalarString(val any) (string, bool) {
	switch v := val.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case encoding.TextMarshaler:
		b, err := v.MarshalText()
		if err != nil {
			return "", false
		}
		return string(b), true
	case fmt.Stringer:
		return v.String(), true
	}
	return "", false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	ref := reflect.ValueOf(v)
	switch ref.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return ref.IsNil()
	}
	return false
}

// Reverses nested bracket encoding: `filter[name]=x&ids[]=a&ids[]=b` becomes {"filter": {"name": "x"}, "ids": ["a", "b"]}. Keys holding a single plain value decode to a string.
func DecodeParams(vals url.Values) (map[string]any, error) {
	out := map[string]any{}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path, err := splitParamKey(k)
		if err != nil {
			return nil, err
		}
		for _, v := range vals[k] {
			if err := insertParam(out, path, v); err != nil {
				return nil, fmt.Errorf("decoding query param '%s': %w", k, err)
			}
		}
	}
	return out, nil
}

func splitParamKey(k string) ([]string, error) {
	i := strings.IndexByte(k, '[')
	if i < 0 {
		return []string{k}, nil
	}
	path := []string{k[:i]}
	rest := k[i:]
	for rest != "" {
		if rest[0] != '[' {
			return nil, fmt.Errorf("malformed query param key: %s", k)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, fmt.Errorf("malformed query param key: %s", k)
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	return path, nil
}

// Inserts one value at a bracket path. An empty segment ("[]") means "append to list"; it must be the last segment.
func insertParam(m map[string]any, path []string, val string) error {
	head := path[0]
	if len(path) == 1 {
		m[head] = val
		return nil
	}
	if path[1] == "" {
		if len(path) > 2 {
			return fmt.Errorf("nested values inside lists are not supported")
		}
		list, _ := m[head].([]any)
		m[head] = append(list, val)
		return nil
	}
	sub, ok := m[head].(map[string]any)
	if !ok {
		sub = map[string]any{}
		m[head] = sub
	}
	return insertParam(sub, path[1:], val)
}
