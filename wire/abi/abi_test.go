// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package abi

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type inner struct {
	A uint32
	B []byte
}

type outer struct {
	Name      string
	Count     uint64 `abi:"varint"`
	Inner     inner
	Maybe     *inner
	Items     []uint16
	Extension uint32 `abi:"extension"`
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := outer{
		Name:  "block",
		Count: 300,
		Inner: inner{A: 7, B: []byte("hi")},
		Maybe: &inner{A: 9, B: nil},
		Items: []uint16{1, 2, 3},
	}

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(in))

	var out outer
	require.NoError(t, NewDecoder(&buf).Decode(&out))
	require.Equal(t, in.Name, out.Name)
	require.Equal(t, in.Count, out.Count)
	require.Equal(t, in.Inner, out.Inner)
	require.Equal(t, *in.Maybe, *out.Maybe)
	require.Equal(t, in.Items, out.Items)
}

func TestEncodeDecodeNilOptional(t *testing.T) {
	in := outer{Name: "x", Inner: inner{}, Maybe: nil}

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(in))

	var out outer
	require.NoError(t, NewDecoder(&buf).Decode(&out))
	require.Nil(t, out.Maybe)
}

func TestValidateRejectsCircularType(t *testing.T) {
	type node struct {
		Children []*node
	}
	err := Validate(&node{})
	require.ErrorIs(t, err, ErrCircularType)
}

func TestValidateAcceptsAcyclicType(t *testing.T) {
	require.NoError(t, Validate(&outer{}))
}

type variantA struct {
	X uint32
}

type variantB struct {
	Y string
}

type withVariant struct {
	Kind Variant `abi:"variant=test_variant_group"`
}

func TestEncodeDecodeVariant(t *testing.T) {
	RegisterVariant("test_variant_group", 0, variantA{})
	RegisterVariant("test_variant_group", 1, variantB{})

	in := withVariant{Kind: Variant{Tag: 1, Value: variantB{Y: "hello"}}}

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(in))

	var out withVariant
	require.NoError(t, NewDecoder(&buf).Decode(&out))
	require.Equal(t, uint8(1), out.Kind.Tag)
	require.Equal(t, variantB{Y: "hello"}, out.Kind.Value)
}

func TestDecodeVariantUnknownTag(t *testing.T) {
	RegisterVariant("test_variant_group", 0, variantA{})

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(withVariant{Kind: Variant{Tag: 0, Value: variantA{X: 5}}}))
	buf.Bytes()[0] = 200 // corrupt the tag byte to one with no registration

	var out withVariant
	err := NewDecoder(&buf).Decode(&out)
	require.ErrorIs(t, err, ErrUnknownVariantTag)
}
