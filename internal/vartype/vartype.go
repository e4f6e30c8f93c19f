// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package vartype

import (
	"fmt"
)

// VarFloat64 is a Variable[float64]. Battery levels and courses use it to tell
// "unknown" apart from a legitimate zero.
type VarFloat64 = Variable[float64]

// Variable holds a value of type T and whether it has been set.
type Variable[T any] struct {
	value T
	isset bool
}

// NewVariable returns a Variable set to value.
func NewVariable[T any](value T) Variable[T] {
	return Variable[T]{
		isset: true,
		value: value,
	}
}

// Reset clears the value and marks the Variable as unset.
func (v *Variable[T]) Reset() {
	var newVal T
	v.value = newVal
	v.isset = false
}

// Value returns the stored value, or the zero value of T if unset.
func (v Variable[T]) Value() T {
	return v.value
}

// Set assigns val and marks the Variable as set.
func (v *Variable[T]) Set(val T) {
	v.value = val
	v.isset = true
}

// IsSet reports whether the Variable holds a value.
func (v Variable[T]) IsSet() bool {
	return v.isset
}

// String returns the value formatted with fmt, or "unknown" if unset.
func (v Variable[T]) String() string {
	if !v.isset {
		return "unknown"
	}
	return fmt.Sprint(v.value)
}
