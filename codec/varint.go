package codec

import "encoding/binary"

// AppendUnsigned appends the LEB128 varint encoding of v to dst and returns
// the extended slice. At least one byte is always written (v == 0 encodes as
// 0x00); values up to 64 bits take at most 10 bytes.
func AppendUnsigned(dst []byte, v uint64) []byte {
	return binary.AppendUvarint(dst, v)
}

// DecodeUnsigned reads a LEB128 varint from the front of data, returning the
// decoded value and the number of bytes consumed.
func DecodeUnsigned(data []byte) (value uint64, n int, err error) {
	v, n := binary.Uvarint(data)
	if n == 0 {
		return 0, 0, ErrInsufficientData
	}
	if n < 0 {
		// binary.Uvarint returns a negative count on overflow (more than 10
		// bytes, or the final shift exceeding 63) — both are malformed input
		// by spec, not a distinct error class.
		return 0, 0, ErrInsufficientData
	}
	return v, n, nil
}

// AppendSigned zigzag-encodes v and appends it as a varint. Zigzag keeps
// small-magnitude signed values small on the wire: 0, -1, 1, -2, 2, ...
// encode as 0, 1, 2, 3, 4, ...
func AppendSigned(dst []byte, v int64) []byte {
	zigzag := (uint64(v) << 1) ^ uint64(v>>63)
	return AppendUnsigned(dst, zigzag)
}

// DecodeSigned reads a zigzag-varint from the front of data.
func DecodeSigned(data []byte) (value int64, n int, err error) {
	zigzag, n, err := DecodeUnsigned(data)
	if err != nil {
		return 0, 0, err
	}
	return int64(zigzag>>1) ^ -int64(zigzag&1), n, nil
}
