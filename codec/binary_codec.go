package codec

import "github.com/fxamacker/cbor/v2"

// BinaryCodec serializes with CBOR: a compact, self-delimiting binary
// format. Self-delimiting matters here — cbor.Unmarshal decodes exactly
// one top-level item and reports ExtraneousDataError if bytes remain,
// which is exactly the "deserialize must consume exactly the supplied
// bytes" contract the RPC layer depends on (mini-RPC's hand-rolled
// binary codec only ever had one fixed struct shape to worry about;
// CBOR gets the same guarantee for arbitrary argument tuples).
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

func (c *BinaryCodec) Type() Type {
	return TypeBinary
}
