package codec

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// WriteHeader appends the stream header to dst: version byte, asset count,
// each asset as a length-prefixed string, an 8-byte little-endian reference
// timestamp, then the reference prices and quantities as 8-byte
// little-endian float64s, in asset-table order. It seeds every asset's
// delta state to (referenceTimestamp, referencePrices[i],
// referenceQuantities[i]) so the first message frame for that asset deltas
// against the reference row rather than against zero.
//
// referencePrices and referenceQuantities must each have len(c.assets)
// entries.
func (c *Codec) WriteHeader(dst []byte, referenceTimestamp uint64, referencePrices, referenceQuantities []float64) []byte {
	dst = append(dst, c.version)
	dst = append(dst, byte(len(c.assets)))

	for _, asset := range c.assets {
		dst = append(dst, byte(len(asset)))
		dst = append(dst, asset...)
	}

	dst = binary.LittleEndian.AppendUint64(dst, referenceTimestamp)

	for _, p := range referencePrices {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(p))
	}
	for _, q := range referenceQuantities {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(q))
	}

	c.states = make([]assetState, len(c.assets))
	for i := range c.states {
		c.states[i] = assetState{
			lastTimestamp: referenceTimestamp,
			lastPrice:     referencePrices[i],
			lastQuantity:  referenceQuantities[i],
		}
	}

	return dst
}

// ReadHeader parses a header from the front of data, replacing the codec's
// asset table and seeding per-asset delta state from the reference row. It
// returns the number of bytes consumed.
func (c *Codec) ReadHeader(data []byte) (n int, err error) {
	if len(data) < 2 {
		return 0, ErrInsufficientData
	}

	version := data[0]
	if version != c.version {
		return 0, ErrInvalidVersion
	}
	assetCount := int(data[1])
	pos := 2

	assets := make([]string, 0, assetCount)
	assetToID := make(map[string]byte, assetCount)
	for i := 0; i < assetCount; i++ {
		if pos >= len(data) {
			return 0, ErrInsufficientData
		}
		symLen := int(data[pos])
		pos++
		if pos+symLen > len(data) {
			return 0, ErrInsufficientData
		}
		symBytes := data[pos : pos+symLen]
		if !utf8.Valid(symBytes) {
			return 0, ErrInvalidSymbol
		}
		symbol := string(symBytes)
		pos += symLen
		assets = append(assets, symbol)
		assetToID[symbol] = byte(i)
	}

	if pos+8 > len(data) {
		return 0, ErrInsufficientData
	}
	referenceTimestamp := binary.LittleEndian.Uint64(data[pos:])
	pos += 8

	referencePrices := make([]float64, assetCount)
	for i := 0; i < assetCount; i++ {
		if pos+8 > len(data) {
			return 0, ErrInsufficientData
		}
		referencePrices[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[pos:]))
		pos += 8
	}

	referenceQuantities := make([]float64, assetCount)
	for i := 0; i < assetCount; i++ {
		if pos+8 > len(data) {
			return 0, ErrInsufficientData
		}
		referenceQuantities[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[pos:]))
		pos += 8
	}

	states := make([]assetState, assetCount)
	for i := range states {
		states[i] = assetState{
			lastTimestamp: referenceTimestamp,
			lastPrice:     referencePrices[i],
			lastQuantity:  referenceQuantities[i],
		}
	}

	c.assets = assets
	c.assetToID = assetToID
	c.states = states

	return pos, nil
}
