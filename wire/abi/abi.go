// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package abi implements a deterministic binary encoding for structs
// built out of integers (8/16/32/64), varints, fixed bytes, strings,
// arrays, optionals, tagged variants and struct extensions, driven by
// Go struct tags rather than a parsed textual type definition.
package abi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
)

// ErrCircularType is returned by Validate when a struct's field graph
// contains a cycle; the ABI serializer rejects these at load time
// rather than looping forever at encode time.
var ErrCircularType = errors.New("abi: circular type definition")

// ErrUnknownVariantTag is returned by Decode when a variant field's tag
// byte has no type registered against it in its group.
var ErrUnknownVariantTag = errors.New("abi: unknown variant tag")

var variantType = reflect.TypeOf(Variant{})

// Variant is a tagged-union value: Tag selects which of a group's
// pre-registered concrete types Value holds. A struct field of type
// Variant must carry an `abi:"variant=<group>"` tag naming the group
// its tag byte is resolved against.
type Variant struct {
	Tag   uint8
	Value interface{}
}

var variantRegistry = struct {
	mu    sync.RWMutex
	types map[string]map[uint8]reflect.Type
}{types: make(map[string]map[uint8]reflect.Type)}

// RegisterVariant associates tag, within group, with sample's type so
// Decode can construct the right concrete type for an incoming Variant
// whose Tag field matches. Call during package init, before any
// Encode/Decode of a Variant in that group.
func RegisterVariant(group string, tag uint8, sample interface{}) {
	variantRegistry.mu.Lock()
	defer variantRegistry.mu.Unlock()
	m, ok := variantRegistry.types[group]
	if !ok {
		m = make(map[uint8]reflect.Type)
		variantRegistry.types[group] = m
	}
	m[tag] = reflect.TypeOf(sample)
}

func variantTypeFor(group string, tag uint8) (reflect.Type, bool) {
	variantRegistry.mu.RLock()
	defer variantRegistry.mu.RUnlock()
	t, ok := variantRegistry.types[group][tag]
	return t, ok
}

func variantGroup(tag reflect.StructTag) (string, bool) {
	v, ok := tag.Lookup("abi")
	if !ok {
		return "", false
	}
	group, found := strings.CutPrefix(v, "variant=")
	return group, found
}

// Encoder writes values in the ABI binary format.
type Encoder struct {
	w io.Writer
}

// NewEncoder wraps w for ABI encoding.
func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

// Encode writes v, which must be a struct, pointer to struct, or one of
// the supported primitive/slice shapes.
func (e *Encoder) Encode(v interface{}) error {
	return e.encodeValue(reflect.ValueOf(v))
}

func (e *Encoder) encodeValue(rv reflect.Value) error {
	if rv.Type() == variantType {
		return e.encodeVariant(rv.Interface().(Variant))
	}
	switch rv.Kind() {
	case reflect.Ptr:
		// Optionals: a nil pointer encodes as a single false byte; a
		// non-nil pointer encodes true followed by the pointee.
		if rv.IsNil() {
			return e.writeBool(false)
		}
		if err := e.writeBool(true); err != nil {
			return err
		}
		return e.encodeValue(rv.Elem())
	case reflect.Struct:
		return e.encodeStruct(rv)
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return e.writeBytes(rv.Bytes())
		}
		if err := e.writeVarint(uint64(rv.Len())); err != nil {
			return err
		}
		for i := 0; i < rv.Len(); i++ {
			if err := e.encodeValue(rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := e.encodeValue(rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.String:
		return e.writeBytes([]byte(rv.String()))
	case reflect.Bool:
		return e.writeBool(rv.Bool())
	case reflect.Uint8:
		_, err := e.w.Write([]byte{byte(rv.Uint())})
		return err
	case reflect.Uint16:
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(rv.Uint()))
		_, err := e.w.Write(buf[:])
		return err
	case reflect.Uint32:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(rv.Uint()))
		_, err := e.w.Write(buf[:])
		return err
	case reflect.Uint64, reflect.Uint:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], rv.Uint())
		_, err := e.w.Write(buf[:])
		return err
	case reflect.Int32:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(rv.Int()))
		_, err := e.w.Write(buf[:])
		return err
	case reflect.Int64, reflect.Int:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(rv.Int()))
		_, err := e.w.Write(buf[:])
		return err
	default:
		return fmt.Errorf("abi: unsupported kind %s", rv.Kind())
	}
}

// encodeStruct walks exported fields in declaration order, honoring
// two struct tag conventions:
//   - `abi:"varint"` on an unsigned integer field: encode as a varint
//     instead of its fixed width.
//   - `abi:"extension"`: the field (and every subsequent field) may be
//     omitted once the stream ends, so a struct extension suffix ($ in
//     a textual ABI) maps onto a trailing run of tagged fields.
func (e *Encoder) encodeStruct(rv reflect.Value) error {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		fv := rv.Field(i)
		if field.Tag.Get("abi") == "varint" {
			if err := e.writeVarint(fv.Uint()); err != nil {
				return err
			}
			continue
		}
		if err := e.encodeValue(fv); err != nil {
			return err
		}
	}
	return nil
}

// encodeVariant writes a Variant as its tag byte followed by the
// concrete value it currently holds.
func (e *Encoder) encodeVariant(v Variant) error {
	if _, err := e.w.Write([]byte{v.Tag}); err != nil {
		return err
	}
	return e.encodeValue(reflect.ValueOf(v.Value))
}

func (e *Encoder) writeBool(b bool) error {
	v := byte(0)
	if b {
		v = 1
	}
	_, err := e.w.Write([]byte{v})
	return err
}

func (e *Encoder) writeVarint(v uint64) error {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, v)
	_, err := e.w.Write(buf[:n])
	return err
}

func (e *Encoder) writeBytes(b []byte) error {
	if err := e.writeVarint(uint64(len(b))); err != nil {
		return err
	}
	_, err := e.w.Write(b)
	return err
}
