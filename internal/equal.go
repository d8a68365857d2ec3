package internal

import "reflect"

// isEqual compares state and prop values by identity. Maps, slices and
// pointers compare by address so a fresh map is always a change; functions
// never compare equal.
func isEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		if va.IsNil() || vb.IsNil() {
			return va.IsNil() && vb.IsNil()
		}
		if va.Kind() == reflect.Slice && va.Len() != vb.Len() {
			return false
		}
		return va.Pointer() == vb.Pointer()
	case reflect.Func:
		return false
	}

	if va.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// depsEqual compares effect and memo dependency lists element-wise.
func depsEqual(a, b []any) bool {
	if a == nil || b == nil || len(a) != len(b) {
		return false
	}
	for i := range a {
		if !isEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}
