package mergerpc

import (
	"fmt"
	"math"

	"google.golang.org/grpc/encoding"
	encproto "google.golang.org/grpc/encoding/proto"
	"google.golang.org/grpc/mem"
	"google.golang.org/protobuf/encoding/protowire"
)

// CodecName is the gRPC content-subtype the merge service speaks.
const CodecName = "cloudmerge"

func init() {
	encoding.RegisterCodec(Codec{})
	encoding.RegisterCodecV2(protoCodec{fallback: encoding.GetCodecV2(encproto.Name)})
}

// wireMessage is implemented by every request and response type. The
// encoding is protobuf wire format; point payloads are carried as bytes in
// the same little-endian float32 layout as the velodyne .bin files.
type wireMessage interface {
	appendWire(b []byte) []byte
	unmarshalWire(b []byte) error
}

// Codec marshals the merge service messages.
type Codec struct{}

// Name implements encoding.Codec.
func (Codec) Name() string { return CodecName }

// Marshal implements encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("cloudmerge codec: cannot marshal %T", v)
	}
	return m.appendWire(nil), nil
}

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("cloudmerge codec: cannot unmarshal into %T", v)
	}
	return m.unmarshalWire(data)
}

// protoCodec replaces the default "proto" codec so clients generated from
// proto/cloudmerge/v1/merger.proto can call the service without selecting a
// content-subtype. Types other than the merge messages go to the stock codec.
type protoCodec struct {
	fallback encoding.CodecV2
}

// Name implements encoding.CodecV2.
func (protoCodec) Name() string { return encproto.Name }

// Marshal implements encoding.CodecV2.
func (c protoCodec) Marshal(v any) (mem.BufferSlice, error) {
	if m, ok := v.(wireMessage); ok {
		return mem.BufferSlice{mem.SliceBuffer(m.appendWire(nil))}, nil
	}
	return c.fallback.Marshal(v)
}

// Unmarshal implements encoding.CodecV2.
func (c protoCodec) Unmarshal(data mem.BufferSlice, v any) error {
	if m, ok := v.(wireMessage); ok {
		return m.unmarshalWire(data.Materialize())
	}
	return c.fallback.Unmarshal(data, v)
}

// MergeRequest carries two encoded clouds and the transform for the second.
type MergeRequest struct {
	Primary     []byte    // field 1
	Secondary   []byte    // field 2
	Rotation    []float64 // field 3, packed, row-major 4x4
	Translation []float64 // field 4, packed
}

// FrameMessage is one vehicle's encoded cloud and pose.
type FrameMessage struct {
	ID    string    // field 1
	Pose  []float64 // field 2, packed x y z roll pitch yaw
	Cloud []byte    // field 3
}

// MergeFramesRequest merges every secondary into the primary's frame.
type MergeFramesRequest struct {
	Primary     *FrameMessage   // field 1
	Secondaries []*FrameMessage // field 2, repeated
}

// ExecuteRequest maps one cloud through the server's configured transform.
type ExecuteRequest struct {
	Cloud []byte // field 1
}

// CloudResponse is the result of every method.
type CloudResponse struct {
	Cloud     []byte // field 1
	Points    uint64 // field 2
	ElapsedNs uint64 // field 3
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendDoublesField(b []byte, num protowire.Number, vs []float64) []byte {
	if len(vs) == 0 {
		return b
	}
	packed := make([]byte, 0, len(vs)*8)
	for _, v := range vs {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	return appendBytesField(b, num, packed)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// field is one decoded tag/value pair. Exactly one of raw, varint or fixed
// is meaningful depending on typ.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	raw    []byte
	varint uint64
	fixed  uint64
}

// walkFields calls fn for every field in b. Unknown wire types are skipped.
func walkFields(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.raw = append([]byte(nil), v...)
			b = b[n:]
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.varint = v
			b = b[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f.fixed = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// appendDoubles accepts both packed and unpacked encodings of a repeated
// double field.
func appendDoubles(dst []float64, f field) ([]float64, error) {
	switch f.typ {
	case protowire.Fixed64Type:
		return append(dst, math.Float64frombits(f.fixed)), nil
	case protowire.BytesType:
		b := f.raw
		for len(b) > 0 {
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return dst, protowire.ParseError(n)
			}
			dst = append(dst, math.Float64frombits(v))
			b = b[n:]
		}
		return dst, nil
	default:
		return dst, fmt.Errorf("field %d: unexpected wire type %d for double", f.num, f.typ)
	}
}

func (m *MergeRequest) appendWire(b []byte) []byte {
	b = appendBytesField(b, 1, m.Primary)
	b = appendBytesField(b, 2, m.Secondary)
	b = appendDoublesField(b, 3, m.Rotation)
	return appendDoublesField(b, 4, m.Translation)
}

func (m *MergeRequest) unmarshalWire(b []byte) error {
	*m = MergeRequest{}
	return walkFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Primary = f.raw
		case 2:
			m.Secondary = f.raw
		case 3:
			m.Rotation, err = appendDoubles(m.Rotation, f)
		case 4:
			m.Translation, err = appendDoubles(m.Translation, f)
		}
		return err
	})
}

func (m *FrameMessage) appendWire(b []byte) []byte {
	if m.ID != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.ID)
	}
	b = appendDoublesField(b, 2, m.Pose)
	return appendBytesField(b, 3, m.Cloud)
}

func (m *FrameMessage) unmarshalWire(b []byte) error {
	*m = FrameMessage{}
	return walkFields(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.ID = string(f.raw)
		case 2:
			m.Pose, err = appendDoubles(m.Pose, f)
		case 3:
			m.Cloud = f.raw
		}
		return err
	})
}

func appendMessageField(b []byte, num protowire.Number, m wireMessage) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.appendWire(nil))
}

func (m *MergeFramesRequest) appendWire(b []byte) []byte {
	if m.Primary != nil {
		b = appendMessageField(b, 1, m.Primary)
	}
	for _, s := range m.Secondaries {
		b = appendMessageField(b, 2, s)
	}
	return b
}

func (m *MergeFramesRequest) unmarshalWire(b []byte) error {
	*m = MergeFramesRequest{}
	return walkFields(b, func(f field) error {
		if f.num != 1 && f.num != 2 {
			return nil
		}
		if f.typ != protowire.BytesType {
			return fmt.Errorf("field %d: unexpected wire type %d for frame", f.num, f.typ)
		}
		fm := &FrameMessage{}
		if err := fm.unmarshalWire(f.raw); err != nil {
			return err
		}
		if f.num == 1 {
			m.Primary = fm
		} else {
			m.Secondaries = append(m.Secondaries, fm)
		}
		return nil
	})
}

func (m *ExecuteRequest) appendWire(b []byte) []byte {
	return appendBytesField(b, 1, m.Cloud)
}

func (m *ExecuteRequest) unmarshalWire(b []byte) error {
	*m = ExecuteRequest{}
	return walkFields(b, func(f field) error {
		if f.num == 1 {
			m.Cloud = f.raw
		}
		return nil
	})
}

func (m *CloudResponse) appendWire(b []byte) []byte {
	b = appendBytesField(b, 1, m.Cloud)
	b = appendVarintField(b, 2, m.Points)
	return appendVarintField(b, 3, m.ElapsedNs)
}

func (m *CloudResponse) unmarshalWire(b []byte) error {
	*m = CloudResponse{}
	return walkFields(b, func(f field) error {
		switch f.num {
		case 1:
			m.Cloud = f.raw
		case 2:
			m.Points = f.varint
		case 3:
			m.ElapsedNs = f.varint
		}
		return nil
	})
}
