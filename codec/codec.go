// Package codec provides the serialization layer required by the RPC
// endpoint: Encode turns an arbitrary value into bytes,
// Decode is its exact inverse and must error if any bytes of the input
// are left unconsumed once the value is read back. Both implementations
// here are generic over any encodable Go value, so a Tuple of call
// arguments, a Key, or a Reply all serialize the same way the endpoint
// serializes a single struct.
//
// Two implementations are provided, mirroring mini-RPC's pluggable
// Strategy-pattern codec:
//   - JSONCodec:   human-readable, easy to debug
//   - BinaryCodec: compact self-delimiting binary (CBOR)
package codec

// Type identifies the serialization format, carried in the frame header
// so the receiver knows which codec to use for decoding.
type Type byte

const (
	TypeJSON   Type = 0
	TypeBinary Type = 1
)

// Codec is the interface for serialization/deserialization. Adding a
// new wire format (protobuf, msgpack, ...) means adding an
// implementation, never touching the layers above it — the Strategy
// pattern.
type Codec interface {
	// Encode serializes v to bytes.
	Encode(v any) ([]byte, error)
	// Decode deserializes data into v. It must error if data contains
	// trailing bytes once v has been fully read.
	Decode(data []byte, v any) error
	// Type returns the codec's wire identifier.
	Type() Type
}

// Get is a factory function returning the codec registered for typ.
func Get(typ Type) Codec {
	if typ == TypeJSON {
		return &JSONCodec{}
	}
	return &BinaryCodec{}
}
