// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package literal

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gomlx/hlo/types/shapes"
)

// GobSerialize literal in binary format: its shape followed by its flat storage, or its elements for tuples.
func (l *Literal) GobSerialize(encoder *gob.Encoder) error {
	if err := l.shape.GobSerialize(encoder); err != nil {
		return err
	}
	if l.IsTuple() {
		for _, element := range l.elements {
			if err := element.GobSerialize(encoder); err != nil {
				return err
			}
		}
		return nil
	}
	if !l.shape.IsArray() {
		return nil
	}
	data := l.data
	if f16, ok := data.([]float16.Float16); ok {
		data = float16ToBits(f16)
	}
	if err := encoder.Encode(data); err != nil {
		return errors.Wrapf(err, "failed to serialize literal of shape %s", l.shape)
	}
	return nil
}

// GobDeserialize a Literal serialized with Literal.GobSerialize.
func GobDeserialize(decoder *gob.Decoder) (*Literal, error) {
	shape, err := shapes.GobDeserialize(decoder)
	if err != nil {
		return nil, err
	}
	if err = shape.Validate(); err != nil {
		return nil, errors.WithMessage(err, "deserialized literal has an invalid shape")
	}
	l := New(shape)
	if shape.IsTuple() {
		for ii := range l.elements {
			l.elements[ii], err = GobDeserialize(decoder)
			if err != nil {
				return nil, err
			}
		}
		return l, nil
	}
	if !shape.IsArray() {
		return l, nil
	}
	// Decode into a pointer to a slice of the right type.
	if err = decodeStorage(decoder, l); err != nil {
		return nil, errors.Wrapf(err, "failed to deserialize literal of shape %s", shape)
	}
	return l, nil
}

// GobEncode implements gob.GobEncoder, so literals can be fields of gob encoded structures.
func (l *Literal) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := l.GobSerialize(gob.NewEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (l *Literal) GobDecode(data []byte) error {
	decoded, err := GobDeserialize(gob.NewDecoder(bytes.NewReader(data)))
	if err != nil {
		return err
	}
	*l = *decoded
	return nil
}

func decodeStorage(decoder *gob.Decoder, l *Literal) error {
	decodeInto := func(ptr any) error { return decoder.Decode(ptr) }
	var err error
	switch data := l.data.(type) {
	case []bool:
		err = decodeInto(&data)
		l.data = data
	case []int8:
		err = decodeInto(&data)
		l.data = data
	case []int16:
		err = decodeInto(&data)
		l.data = data
	case []int32:
		err = decodeInto(&data)
		l.data = data
	case []int64:
		err = decodeInto(&data)
		l.data = data
	case []uint8:
		err = decodeInto(&data)
		l.data = data
	case []uint16:
		err = decodeInto(&data)
		l.data = data
	case []uint32:
		err = decodeInto(&data)
		l.data = data
	case []uint64:
		err = decodeInto(&data)
		l.data = data
	case []float32:
		err = decodeInto(&data)
		l.data = data
	case []float64:
		err = decodeInto(&data)
		l.data = data
	default:
		// Float16 is stored as its raw bits.
		bits := make([]uint16, 0)
		if err = decodeInto(&bits); err == nil {
			l.data = float16FromBits(bits)
		}
	}
	if err != nil {
		return err
	}
	if storageLen(l.data) != l.shape.Size() {
		return errors.Errorf("decoded %d elements, expected %d", storageLen(l.data), l.shape.Size())
	}
	return nil
}

func float16ToBits(values []float16.Float16) []uint16 {
	bits := make([]uint16, len(values))
	for ii, v := range values {
		bits[ii] = v.Bits()
	}
	return bits
}

func float16FromBits(bits []uint16) []float16.Float16 {
	values := make([]float16.Float16, len(bits))
	for ii, b := range bits {
		values[ii] = float16.Frombits(b)
	}
	return values
}

func storageLen(data any) int {
	switch d := data.(type) {
	case []bool:
		return len(d)
	case []int8:
		return len(d)
	case []int16:
		return len(d)
	case []int32:
		return len(d)
	case []int64:
		return len(d)
	case []uint8:
		return len(d)
	case []uint16:
		return len(d)
	case []uint32:
		return len(d)
	case []uint64:
		return len(d)
	case []float16.Float16:
		return len(d)
	case []float32:
		return len(d)
	case []float64:
		return len(d)
	}
	return 0
}
