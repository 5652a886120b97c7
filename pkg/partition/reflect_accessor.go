package partition

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// ReflectAccessor resolves fields of Go structs (or pointers to structs) and
// of maps with string keys by reflection.
//
// A struct field matches a name by, in order of precedence: its `kite` tag,
// its `json` tag, its exact Go name, and its Go name compared
// case-insensitively (so "userId" finds UserID). Fields tagged `kite:"-"`
// are never resolved. Matching an unexported field yields AccessDenied.
// Field lookups are cached per struct type.
type ReflectAccessor struct {
	cache sync.Map // reflect.Type -> *structFields
}

// NewReflectAccessor creates a reflective accessor with an empty cache.
func NewReflectAccessor() *ReflectAccessor {
	return &ReflectAccessor{}
}

type structFields struct {
	byTag    map[string][]int
	byJSON   map[string][]int
	byName   map[string][]int
	byFolded map[string][]int
	skipped  map[string]bool
}

func (sf *structFields) lookup(name string) ([]int, bool) {
	if idx, ok := sf.byTag[name]; ok {
		return idx, true
	}
	if sf.skipped[name] {
		return nil, false
	}
	if idx, ok := sf.byJSON[name]; ok {
		return idx, true
	}
	if idx, ok := sf.byName[name]; ok {
		return idx, true
	}
	idx, ok := sf.byFolded[strings.ToLower(name)]
	return idx, ok
}

// FieldValue implements FieldAccessor.
func (a *ReflectAccessor) FieldValue(entity interface{}, name string) (interface{}, error) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, NotFound(entity, name)
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, NotFound(entity, name)
		}
		mv := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if !mv.IsValid() {
			return nil, NotFound(entity, name)
		}
		return mv.Interface(), nil
	case reflect.Struct:
		idx, ok := a.fields(v.Type()).lookup(name)
		if !ok {
			return nil, NotFound(entity, name)
		}
		fv, err := v.FieldByIndexErr(idx)
		if err != nil {
			// Promoted through a nil embedded pointer.
			return nil, NotFound(entity, name)
		}
		if !fv.CanInterface() {
			return nil, Denied(entity, name, fmt.Errorf("field is unexported"))
		}
		return fv.Interface(), nil
	}
	return nil, NotFound(entity, name)
}

func (a *ReflectAccessor) fields(t reflect.Type) *structFields {
	if cached, ok := a.cache.Load(t); ok {
		return cached.(*structFields)
	}
	sf := &structFields{
		byTag:    make(map[string][]int),
		byJSON:   make(map[string][]int),
		byName:   make(map[string][]int),
		byFolded: make(map[string][]int),
		skipped:  make(map[string]bool),
	}
	for _, f := range reflect.VisibleFields(t) {
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			continue
		}
		if tag, ok := f.Tag.Lookup("kite"); ok {
			tag = tagName(tag)
			if tag == "-" {
				sf.skipped[f.Name] = true
				continue
			}
			if tag != "" {
				addOnce(sf.byTag, tag, f.Index)
			}
		}
		if tag := tagName(f.Tag.Get("json")); tag != "" && tag != "-" {
			addOnce(sf.byJSON, tag, f.Index)
		}
		addOnce(sf.byName, f.Name, f.Index)
		addOnce(sf.byFolded, strings.ToLower(f.Name), f.Index)
	}
	actual, _ := a.cache.LoadOrStore(t, sf)
	return actual.(*structFields)
}

func tagName(tag string) string {
	if i := strings.IndexByte(tag, ','); i >= 0 {
		return tag[:i]
	}
	return tag
}

// addOnce keeps the shallowest field registered under name.
func addOnce(m map[string][]int, name string, index []int) {
	if prev, ok := m[name]; ok && len(prev) <= len(index) {
		return
	}
	m[name] = index
}
