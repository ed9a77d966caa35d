package codec

// Trade is the logical payload carried by one encoded frame.
type Trade struct {
	Symbol       string
	Timestamp    uint64 // ms epoch
	Price        float64
	Quantity     float64 // non-negative
	IsBuyerMaker bool
}

// scaleFactor is the fixed-point scale applied to the price delta and to the
// absolute quantity before they're varint-encoded: five decimal digits of
// precision.
const scaleFactor = 100000.0

// assetState is the per-asset delta-encoding state. Both the encoder and the
// decoder keep one of these per configured asset; they must stay in
// lock-step frame by frame, or the decoder permanently desyncs.
type assetState struct {
	lastTimestamp uint64
	lastPrice     float64
	lastQuantity  float64
}
