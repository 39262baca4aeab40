// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package abi

import (
	"encoding/binary"
	"fmt"
	"io"
	"reflect"
)

// Decoder reads values written by Encoder.
type Decoder struct {
	r io.Reader
}

// NewDecoder wraps r for ABI decoding.
func NewDecoder(r io.Reader) *Decoder { return &Decoder{r: r} }

// Decode populates v, which must be a non-nil pointer.
func (d *Decoder) Decode(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("abi: Decode requires a non-nil pointer, got %T", v)
	}
	return d.decodeValue(rv.Elem())
}

func (d *Decoder) decodeValue(rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Ptr:
		present, err := d.readBool()
		if err != nil {
			return err
		}
		if !present {
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		rv.Set(reflect.New(rv.Type().Elem()))
		return d.decodeValue(rv.Elem())
	case reflect.Struct:
		return d.decodeStruct(rv)
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b, err := d.readBytes()
			if err != nil {
				return err
			}
			rv.SetBytes(b)
			return nil
		}
		n, err := d.readVarint()
		if err != nil {
			return err
		}
		out := reflect.MakeSlice(rv.Type(), int(n), int(n))
		for i := 0; i < int(n); i++ {
			if err := d.decodeValue(out.Index(i)); err != nil {
				return err
			}
		}
		rv.Set(out)
		return nil
	case reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := d.decodeValue(rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.String:
		b, err := d.readBytes()
		if err != nil {
			return err
		}
		rv.SetString(string(b))
		return nil
	case reflect.Bool:
		b, err := d.readBool()
		if err != nil {
			return err
		}
		rv.SetBool(b)
		return nil
	case reflect.Uint8:
		var buf [1]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return err
		}
		rv.SetUint(uint64(buf[0]))
		return nil
	case reflect.Uint16:
		var buf [2]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return err
		}
		rv.SetUint(uint64(binary.LittleEndian.Uint16(buf[:])))
		return nil
	case reflect.Uint32:
		var buf [4]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return err
		}
		rv.SetUint(uint64(binary.LittleEndian.Uint32(buf[:])))
		return nil
	case reflect.Uint64, reflect.Uint:
		var buf [8]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return err
		}
		rv.SetUint(binary.LittleEndian.Uint64(buf[:]))
		return nil
	case reflect.Int32:
		var buf [4]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return err
		}
		rv.SetInt(int64(int32(binary.LittleEndian.Uint32(buf[:]))))
		return nil
	case reflect.Int64, reflect.Int:
		var buf [8]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return err
		}
		rv.SetInt(int64(binary.LittleEndian.Uint64(buf[:])))
		return nil
	default:
		return fmt.Errorf("abi: unsupported kind %s", rv.Kind())
	}
}

// decodeStruct mirrors encodeStruct's field walk. A field tagged
// `abi:"extension"` may be left at its zero value if the stream ends
// exactly at that field, provided every field after it is also an
// extension field.
func (d *Decoder) decodeStruct(rv reflect.Value) error {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		fv := rv.Field(i)
		isExtension := field.Tag.Get("abi") == "extension"

		if group, ok := variantGroup(field.Tag); ok {
			if err := d.decodeVariant(fv, group); err != nil {
				if isExtension && err == io.EOF {
					return nil
				}
				return err
			}
			continue
		}

		if field.Tag.Get("abi") == "varint" {
			n, err := d.readVarint()
			if err != nil {
				if isExtension && err == io.EOF {
					return nil
				}
				return err
			}
			fv.SetUint(n)
			continue
		}

		if err := d.decodeValue(fv); err != nil {
			if isExtension && err == io.EOF {
				return nil
			}
			return err
		}
	}
	return nil
}

// decodeVariant reads a tag byte and looks up its concrete type within
// group, then decodes that type's value into a fresh instance.
func (d *Decoder) decodeVariant(rv reflect.Value, group string) error {
	var tagBuf [1]byte
	if _, err := io.ReadFull(d.r, tagBuf[:]); err != nil {
		return err
	}
	tag := tagBuf[0]

	typ, ok := variantTypeFor(group, tag)
	if !ok {
		return fmt.Errorf("%w: group %q tag %d", ErrUnknownVariantTag, group, tag)
	}

	ptr := reflect.New(typ)
	if err := d.decodeValue(ptr.Elem()); err != nil {
		return err
	}
	rv.Set(reflect.ValueOf(Variant{Tag: tag, Value: ptr.Elem().Interface()}))
	return nil
}

func (d *Decoder) readBool() (bool, error) {
	var buf [1]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

func (d *Decoder) readVarint() (uint64, error) {
	br, ok := d.r.(io.ByteReader)
	if !ok {
		br = &singleByteReader{d.r}
	}
	return binary.ReadUvarint(br)
}

func (d *Decoder) readBytes() ([]byte, error) {
	n, err := d.readVarint()
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// singleByteReader adapts an io.Reader without ReadByte for
// binary.ReadUvarint, avoiding a bufio dependency for callers that
// already hand us a *bytes.Reader-like type.
type singleByteReader struct {
	r io.Reader
}

func (s *singleByteReader) ReadByte() (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(s.r, buf[:])
	return buf[0], err
}
