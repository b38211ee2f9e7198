// Package typesys defines the option type descriptors used by the module
// system: primitives, enums, structs, lists and mappings. Descriptors wrap
// cty types; validation is demand-driven and only runs when a value is
// actually consumed by the realized build.
package typesys

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Kind discriminates the descriptor variants.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindString
	KindEnum
	KindStruct
	KindList
	KindMap
)

// Type is a single option type descriptor.
type Type struct {
	kind     Kind
	variants []string         // enum only
	elem     *Type            // list/map only
	fields   map[string]*Type // struct only
	required map[string]bool  // struct only
}

// Bool returns the boolean type descriptor.
func Bool() *Type { return &Type{kind: KindBool} }

// Int returns the integer type descriptor.
func Int() *Type { return &Type{kind: KindInt} }

// String returns the string type descriptor.
func String() *Type { return &Type{kind: KindString} }

// Enum returns a string type restricted to the given variant set.
func Enum(variants ...string) *Type {
	vs := append([]string(nil), variants...)
	sort.Strings(vs)
	return &Type{kind: KindEnum, variants: vs}
}

// ListOf returns the descriptor for a list with elements of type elem.
func ListOf(elem *Type) *Type { return &Type{kind: KindList, elem: elem} }

// MapOf returns the descriptor for a string-keyed mapping with values of type elem.
func MapOf(elem *Type) *Type { return &Type{kind: KindMap, elem: elem} }

// Struct returns the descriptor for an object with the given named fields.
// Field names listed in required must be present in a validated value; all
// other declared fields are optional.
func Struct(fields map[string]*Type, required ...string) *Type {
	req := make(map[string]bool, len(required))
	for _, name := range required {
		req[name] = true
	}
	return &Type{kind: KindStruct, fields: fields, required: req}
}

// Kind returns the descriptor's kind.
func (t *Type) Kind() Kind { return t.kind }

// Variants returns the enum variant set, sorted. Nil for non-enum types.
func (t *Type) Variants() []string { return t.variants }

// Elem returns the element type of a list or mapping descriptor.
func (t *Type) Elem() *Type { return t.elem }

// FriendlyName renders the descriptor for error messages.
func (t *Type) FriendlyName() string {
	switch t.kind {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindEnum:
		return fmt.Sprintf("enum(%s)", strings.Join(t.variants, ", "))
	case KindList:
		return fmt.Sprintf("list(%s)", t.elem.FriendlyName())
	case KindMap:
		return fmt.Sprintf("map(%s)", t.elem.FriendlyName())
	case KindStruct:
		names := make([]string, 0, len(t.fields))
		for name := range t.fields {
			names = append(names, name)
		}
		sort.Strings(names)
		return fmt.Sprintf("struct{%s}", strings.Join(names, ", "))
	}
	return "invalid"
}

// TypeMismatchError reports a value that violates its declared type. It is
// raised only when the value is consumed, never at assignment time.
type TypeMismatchError struct {
	Path   string   // option path, filled in by the consumer
	Want   string   // friendly name of the declared type
	Got    string   // description of the offending value
	Valid  []string // valid alternatives, when enumerable
	Detail string
}

func (e *TypeMismatchError) Error() string {
	msg := fmt.Sprintf("type mismatch: want %s, got %s", e.Want, e.Got)
	if e.Path != "" {
		msg = fmt.Sprintf("option %q: %s", e.Path, msg)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if len(e.Valid) > 0 {
		msg += fmt.Sprintf(" (valid: %s)", strings.Join(e.Valid, ", "))
	}
	return msg
}

// Validate checks that val conforms to the descriptor t. A nil error means
// the value is safe to consume with the accessor matching t's kind.
func Validate(val cty.Value, t *Type) error {
	if val == cty.NilVal || val.IsNull() {
		return &TypeMismatchError{Want: t.FriendlyName(), Got: "null"}
	}

	switch t.kind {
	case KindBool:
		if val.Type() != cty.Bool {
			return mismatch(t, val)
		}
	case KindInt:
		if val.Type() != cty.Number {
			return mismatch(t, val)
		}
		if bf := val.AsBigFloat(); !bf.IsInt() {
			return &TypeMismatchError{Want: t.FriendlyName(), Got: val.Type().FriendlyName(), Detail: "not a whole number"}
		}
	case KindString:
		if val.Type() != cty.String {
			return mismatch(t, val)
		}
	case KindEnum:
		if val.Type() != cty.String {
			return mismatch(t, val)
		}
		s := val.AsString()
		for _, v := range t.variants {
			if v == s {
				return nil
			}
		}
		return &TypeMismatchError{
			Want:  t.FriendlyName(),
			Got:   fmt.Sprintf("%q", s),
			Valid: t.variants,
		}
	case KindList:
		if !val.Type().IsListType() && !val.Type().IsTupleType() {
			return mismatch(t, val)
		}
		for it := val.ElementIterator(); it.Next(); {
			idx, elem := it.Element()
			if err := Validate(elem, t.elem); err != nil {
				return indexed(err, idx)
			}
		}
	case KindMap:
		if !val.Type().IsMapType() && !val.Type().IsObjectType() {
			return mismatch(t, val)
		}
		for it := val.ElementIterator(); it.Next(); {
			idx, elem := it.Element()
			if err := Validate(elem, t.elem); err != nil {
				return indexed(err, idx)
			}
		}
	case KindStruct:
		if !val.Type().IsObjectType() && !val.Type().IsMapType() {
			return mismatch(t, val)
		}
		present := make(map[string]cty.Value)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			present[k.AsString()] = v
		}
		for name := range t.required {
			if _, ok := present[name]; !ok {
				return &TypeMismatchError{
					Want:   t.FriendlyName(),
					Got:    val.Type().FriendlyName(),
					Detail: fmt.Sprintf("missing required field %q", name),
				}
			}
		}
		for name, fieldVal := range present {
			fieldType, ok := t.fields[name]
			if !ok {
				known := make([]string, 0, len(t.fields))
				for f := range t.fields {
					known = append(known, f)
				}
				sort.Strings(known)
				return &TypeMismatchError{
					Want:   t.FriendlyName(),
					Got:    val.Type().FriendlyName(),
					Detail: fmt.Sprintf("unknown field %q", name),
					Valid:  known,
				}
			}
			if err := Validate(fieldVal, fieldType); err != nil {
				return prefixed(err, name)
			}
		}
	}

	return nil
}

func mismatch(t *Type, val cty.Value) *TypeMismatchError {
	return &TypeMismatchError{Want: t.FriendlyName(), Got: val.Type().FriendlyName()}
}

func indexed(err error, idx cty.Value) error {
	if tm, ok := err.(*TypeMismatchError); ok {
		where := "element"
		if idx.Type() == cty.String {
			where = fmt.Sprintf("key %q", idx.AsString())
		}
		tm.Detail = joinDetail(fmt.Sprintf("at %s", where), tm.Detail)
	}
	return err
}

func prefixed(err error, field string) error {
	if tm, ok := err.(*TypeMismatchError); ok {
		tm.Detail = joinDetail(fmt.Sprintf("in field %q", field), tm.Detail)
	}
	return err
}

func joinDetail(outer, inner string) string {
	if inner == "" {
		return outer
	}
	return outer + ": " + inner
}
