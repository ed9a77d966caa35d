package codec

import "math"

// Encode appends one trade as a delta frame to dst: a packed byte (asset id
// in the low 7 bits, the is-buyer-maker flag in bit 7), a signed varint
// timestamp delta, a signed varint fixed-point price delta, and an unsigned
// varint fixed-point quantity. Deltas are relative to the asset's state as
// of the last successful Encode (or the reference row from WriteHeader, if
// this is the asset's first frame). State only advances on success: a
// failed Encode leaves the asset's state untouched so a caller can drop the
// trade and continue.
func (c *Codec) Encode(dst []byte, trade Trade) ([]byte, error) {
	assetID, ok := c.assetToID[trade.Symbol]
	if !ok {
		return dst, ErrInvalidSymbol
	}

	packed := assetID & 0x7F
	if trade.IsBuyerMaker {
		packed |= 0x80
	}
	dst = append(dst, packed)

	state := c.states[assetID]

	tsDelta, ok := subInt64(trade.Timestamp, state.lastTimestamp)
	if !ok {
		return dst, ErrOverflow
	}
	dst = AppendSigned(dst, tsDelta)

	priceDelta := int64((trade.Price - state.lastPrice) * scaleFactor)
	dst = AppendSigned(dst, priceDelta)

	qtyFixed := uint64(trade.Quantity * scaleFactor)
	dst = AppendUnsigned(dst, qtyFixed)

	c.states[assetID] = assetState{
		lastTimestamp: trade.Timestamp,
		lastPrice:     trade.Price,
		lastQuantity:  trade.Quantity,
	}

	return dst, nil
}

// Decode reads one delta frame from the front of data, returning the
// decoded trade and the number of bytes consumed. As with Encode, the
// asset's state only advances on a successful Decode.
func (c *Codec) Decode(data []byte) (trade Trade, n int, err error) {
	if len(data) < 1 {
		return Trade{}, 0, ErrInsufficientData
	}
	packed := data[0]
	pos := 1

	isBuyerMaker := packed&0x80 != 0
	assetID := packed & 0x7F
	if int(assetID) >= len(c.assets) {
		return Trade{}, 0, ErrInvalidAssetId
	}
	state := c.states[assetID]

	tsDelta, n1, err := DecodeSigned(data[pos:])
	if err != nil {
		return Trade{}, 0, err
	}
	pos += n1
	timestamp, ok := addInt64(state.lastTimestamp, tsDelta)
	if !ok {
		return Trade{}, 0, ErrOverflow
	}

	priceDelta, n2, err := DecodeSigned(data[pos:])
	if err != nil {
		return Trade{}, 0, err
	}
	pos += n2
	price := state.lastPrice + float64(priceDelta)/scaleFactor

	qtyFixed, n3, err := DecodeUnsigned(data[pos:])
	if err != nil {
		return Trade{}, 0, err
	}
	pos += n3
	quantity := float64(qtyFixed) / scaleFactor

	c.states[assetID] = assetState{
		lastTimestamp: timestamp,
		lastPrice:     price,
		lastQuantity:  quantity,
	}

	return Trade{
		Symbol:       c.assets[assetID],
		Timestamp:    timestamp,
		Price:        price,
		Quantity:     quantity,
		IsBuyerMaker: isBuyerMaker,
	}, pos, nil
}

// subInt64 computes a - b as a signed delta, the same way the reference
// codec's checked_sub does: a delta that can't be represented in an int64
// is rejected rather than silently wrapped.
func subInt64(a, b uint64) (int64, bool) {
	ai, bi := int64(a), int64(b)
	d := ai - bi
	if bi > 0 && ai < math.MinInt64+bi {
		return 0, false
	}
	if bi < 0 && ai > math.MaxInt64+bi {
		return 0, false
	}
	return d, true
}

// addInt64 computes a + delta as a uint64 timestamp, rejecting results that
// would wrap below zero or above an int64 (timestamps never legitimately
// reach either extreme).
func addInt64(a uint64, delta int64) (uint64, bool) {
	if delta < 0 && uint64(-delta) > a {
		return 0, false
	}
	ai := int64(a)
	if delta > 0 && ai > math.MaxInt64-delta {
		return 0, false
	}
	return uint64(ai + delta), true
}
