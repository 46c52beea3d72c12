package bsonvalue

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode serializes v deterministically: a Document is
// u32 total length || u16 field count || fields, each field
// u8 type tag || u16 name length || name || value.
func Encode(v Value) []byte {
	var buf []byte
	buf = appendValue(buf, v)
	return buf
}

func appendValue(buf []byte, v Value) []byte {
	switch v.Kind {
	case KindNull, KindMinKey, KindMaxKey:
		return buf
	case KindBool:
		if v.Bool {
			return append(buf, 1)
		}
		return append(buf, 0)
	case KindInt32:
		return appendU32(buf, uint32(v.Int32))
	case KindInt64:
		return appendU64(buf, uint64(v.Int64))
	case KindDouble:
		return appendU64(buf, math.Float64bits(v.Double))
	case KindString:
		return appendLenPrefixed(buf, []byte(v.Str))
	case KindBinary:
		buf = append(buf, v.BinSubtype)
		return appendLenPrefixed(buf, v.Bin)
	case KindObjectID:
		return append(buf, v.OID[:]...)
	case KindDateTime:
		return appendU64(buf, uint64(v.DateTime))
	case KindTimestamp:
		buf = appendU32(buf, v.TimeT)
		return appendU32(buf, v.TimeI)
	case KindRegex:
		buf = appendLenPrefixed(buf, []byte(v.RegexPat))
		return appendLenPrefixed(buf, []byte(v.RegexOpts))
	case KindArray:
		buf = appendU16(buf, uint16(len(v.Array)))
		for _, elem := range v.Array {
			buf = append(buf, byte(elem.Kind))
			buf = appendValue(buf, elem)
		}
		return buf
	case KindDocument:
		return appendDocument(buf, v.Doc)
	default:
		return buf
	}
}

func appendDocument(buf []byte, fields []Field) []byte {
	lenPos := len(buf)
	buf = appendU32(buf, 0) // placeholder, patched below
	buf = appendU16(buf, uint16(len(fields)))

	for _, f := range fields {
		buf = append(buf, byte(f.Value.Kind))
		buf = appendLenPrefixed(buf, []byte(f.Name))
		buf = appendValue(buf, f.Value)
	}

	binary.LittleEndian.PutUint32(buf[lenPos:lenPos+4], uint32(len(buf)-lenPos))
	return buf
}

func appendLenPrefixed(buf, data []byte) []byte {
	buf = appendU16(buf, uint16(len(data)))
	return append(buf, data...)
}

func appendU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// DecodeDocument parses a top-level document previously produced by
// Encode(DocumentOf(...)).
func DecodeDocument(data []byte) (Value, error) {
	v, _, err := decodeValue(KindDocument, data)
	return v, err
}

type decoder struct {
	data []byte
	off  int
}

func decodeValue(kind Kind, data []byte) (Value, int, error) {
	d := &decoder{data: data}
	v, err := d.readValue(kind)
	if err != nil {
		return Value{}, 0, err
	}
	return v, d.off, nil
}

func (d *decoder) need(n int) error {
	if d.off+n > len(d.data) {
		return fmt.Errorf("bsonvalue: truncated value at offset %d, need %d more bytes", d.off, n)
	}
	return nil
}

func (d *decoder) readU16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.data[d.off : d.off+2])
	d.off += 2
	return v, nil
}

func (d *decoder) readU32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.data[d.off : d.off+4])
	d.off += 4
	return v, nil
}

func (d *decoder) readU64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.data[d.off : d.off+8])
	d.off += 8
	return v, nil
}

func (d *decoder) readLenPrefixed() ([]byte, error) {
	n, err := d.readU16()
	if err != nil {
		return nil, err
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.data[d.off:d.off+int(n)])
	d.off += int(n)
	return out, nil
}

func (d *decoder) readValue(kind Kind) (Value, error) {
	switch kind {
	case KindNull:
		return Null(), nil
	case KindMinKey:
		return MinKey(), nil
	case KindMaxKey:
		return MaxKey(), nil
	case KindBool:
		if err := d.need(1); err != nil {
			return Value{}, err
		}
		b := d.data[d.off] != 0
		d.off++
		return Bool(b), nil
	case KindInt32:
		v, err := d.readU32()
		if err != nil {
			return Value{}, err
		}
		return Int32(int32(v)), nil
	case KindInt64:
		v, err := d.readU64()
		if err != nil {
			return Value{}, err
		}
		return Int64(int64(v)), nil
	case KindDouble:
		v, err := d.readU64()
		if err != nil {
			return Value{}, err
		}
		return Double(math.Float64frombits(v)), nil
	case KindString:
		b, err := d.readLenPrefixed()
		if err != nil {
			return Value{}, err
		}
		return String(string(b)), nil
	case KindBinary:
		if err := d.need(1); err != nil {
			return Value{}, err
		}
		subtype := d.data[d.off]
		d.off++
		b, err := d.readLenPrefixed()
		if err != nil {
			return Value{}, err
		}
		return Binary(subtype, b), nil
	case KindObjectID:
		if err := d.need(12); err != nil {
			return Value{}, err
		}
		var oid ObjectID
		copy(oid[:], d.data[d.off:d.off+12])
		d.off += 12
		return ObjectIDValue(oid), nil
	case KindDateTime:
		v, err := d.readU64()
		if err != nil {
			return Value{}, err
		}
		return DateTime(int64(v)), nil
	case KindTimestamp:
		t, err := d.readU32()
		if err != nil {
			return Value{}, err
		}
		i, err := d.readU32()
		if err != nil {
			return Value{}, err
		}
		return Timestamp(t, i), nil
	case KindRegex:
		pat, err := d.readLenPrefixed()
		if err != nil {
			return Value{}, err
		}
		opts, err := d.readLenPrefixed()
		if err != nil {
			return Value{}, err
		}
		return Regex(string(pat), string(opts)), nil
	case KindArray:
		count, err := d.readU16()
		if err != nil {
			return Value{}, err
		}
		elems := make([]Value, count)
		for i := range elems {
			if err := d.need(1); err != nil {
				return Value{}, err
			}
			elemKind := Kind(d.data[d.off])
			d.off++
			elem, err := d.readValue(elemKind)
			if err != nil {
				return Value{}, err
			}
			elems[i] = elem
		}
		return ArrayOf(elems), nil
	case KindDocument:
		totalLen, err := d.readU32()
		if err != nil {
			return Value{}, err
		}
		if int(totalLen) < 6 {
			return Value{}, fmt.Errorf("bsonvalue: document length %d too small", totalLen)
		}
		fieldCount, err := d.readU16()
		if err != nil {
			return Value{}, err
		}
		fields := make([]Field, fieldCount)
		for i := range fields {
			if err := d.need(1); err != nil {
				return Value{}, err
			}
			fieldKind := Kind(d.data[d.off])
			d.off++
			name, err := d.readLenPrefixed()
			if err != nil {
				return Value{}, err
			}
			val, err := d.readValue(fieldKind)
			if err != nil {
				return Value{}, err
			}
			fields[i] = Field{Name: string(name), Value: val}
		}
		return DocumentOf(fields), nil
	default:
		return Value{}, fmt.Errorf("bsonvalue: unknown type tag %d", kind)
	}
}
