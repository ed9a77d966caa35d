// Package codec implements the delta-compressed binary trade wire format:
// a fixed asset-table header followed by a stream of per-trade delta
// frames. One Codec instance encodes or decodes one stream; the two sides
// must be constructed with the same asset list and must process frames in
// the order they were produced, since each asset's delta state is only
// valid relative to the previous frame for that asset.
package codec

// Codec tracks the asset table and per-asset delta state for one direction
// of a stream (encode-only or decode-only; nothing prevents using the same
// instance for both, but callers don't in practice since encoder and
// decoder state diverge the moment either side drops a frame).
type Codec struct {
	version   byte
	assets    []string
	assetToID map[string]byte
	states    []assetState
}

// New returns an empty codec. Call WithAssets before encoding, or
// ReadHeader before decoding.
func New() *Codec {
	return &Codec{version: 1}
}

// WithAssets fixes the asset table for this codec and resets per-asset
// state to zero. It must be called before the first WriteHeader on the
// encode side; the decode side instead derives its asset table from
// ReadHeader.
func (c *Codec) WithAssets(assets []string) (*Codec, error) {
	if len(assets) > 127 {
		return nil, ErrTooManyAssets
	}
	assetToID := make(map[string]byte, len(assets))
	for i, a := range assets {
		assetToID[a] = byte(i)
	}
	c.assets = assets
	c.assetToID = assetToID
	c.states = make([]assetState, len(assets))
	return c, nil
}

// Assets returns the codec's current asset table, in wire order.
func (c *Codec) Assets() []string {
	return c.assets
}
