package dataset

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// #region compression
// Compression selects how snapshot blobs are compressed.
type Compression byte

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", byte(c))
	}
}

// ParseCompression maps "none", "zstd" or "lz4" to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	}
	return CompressionNone, fmt.Errorf("unknown compression %q", s)
}

// ErrCorruptBlob is returned when a snapshot blob cannot be decoded.
var ErrCorruptBlob = errors.New("corrupt snapshot blob")

// #endregion compression

// #region pools
// zstd encoders and decoders are built for reuse; keep warmed instances around.
var zstdEncoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderCRC(false))
		if err != nil {
			panic(fmt.Sprintf("create zstd encoder: %v", err))
		}
		return enc
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("create zstd decoder: %v", err))
		}
		return dec
	},
}

// #endregion pools

// #region encode
// Encode serializes the dataset into a snapshot blob. The first byte records the
// compression so Decode needs no side channel.
func Encode(d Dataset, c Compression) ([]byte, error) {
	raw := binary.AppendUvarint(nil, uint64(len(d)))
	for _, p := range d {
		raw = appendPoint(raw, p)
	}

	switch c {
	case CompressionNone:
		return append([]byte{byte(CompressionNone)}, raw...), nil
	case CompressionZstd:
		enc := zstdEncoderPool.Get().(*zstd.Encoder)
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(raw, []byte{byte(CompressionZstd)}), nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		var lc lz4.Compressor
		n, err := lc.CompressBlock(raw, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 {
			// incompressible
			return append([]byte{byte(CompressionNone)}, raw...), nil
		}
		out := binary.AppendUvarint([]byte{byte(CompressionLZ4)}, uint64(len(raw)))
		return append(out, dst[:n]...), nil
	}
	return nil, fmt.Errorf("encode: unknown compression %v", c)
}

// #endregion encode

// #region decode
// lz4MaxExpansion bounds how much an LZ4 block can grow when decompressed.
const lz4MaxExpansion = 255

// Decode reverses Encode.
func Decode(blob []byte) (Dataset, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrCorruptBlob)
	}

	var raw []byte
	switch Compression(blob[0]) {
	case CompressionNone:
		raw = blob[1:]
	case CompressionZstd:
		dec := zstdDecoderPool.Get().(*zstd.Decoder)
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(blob[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorruptBlob, err)
		}
		raw = out
	case CompressionLZ4:
		size, n := binary.Uvarint(blob[1:])
		if n <= 0 {
			return nil, fmt.Errorf("%w: lz4 size header", ErrCorruptBlob)
		}
		payload := blob[1+n:]
		if size > math.MaxInt32 || size > uint64(lz4MaxExpansion*len(payload)) {
			return nil, fmt.Errorf("%w: lz4 size %d", ErrCorruptBlob, size)
		}
		out := make([]byte, size)
		m, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorruptBlob, err)
		}
		raw = out[:m]
	default:
		return nil, fmt.Errorf("%w: unknown compression byte %d", ErrCorruptBlob, blob[0])
	}

	return decodeRecords(raw)
}

func decodeRecords(raw []byte) (Dataset, error) {
	count, n := binary.Uvarint(raw)
	if n <= 0 {
		return nil, fmt.Errorf("%w: count header", ErrCorruptBlob)
	}
	raw = raw[n:]

	// every record carries at least 17 fixed bytes
	if count > uint64(len(raw)/17) {
		return nil, fmt.Errorf("%w: count %d exceeds payload", ErrCorruptBlob, count)
	}

	d := make(Dataset, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(raw) < 17 {
			return nil, fmt.Errorf("%w: truncated record %d", ErrCorruptBlob, i)
		}
		p := Point{
			X1:    math.Float64frombits(binary.LittleEndian.Uint64(raw[0:])),
			X2:    math.Float64frombits(binary.LittleEndian.Uint64(raw[8:])),
			Label: int(raw[16]),
		}
		raw = raw[17:]

		glen, m := binary.Uvarint(raw)
		if m <= 0 || uint64(len(raw)-m) < glen {
			return nil, fmt.Errorf("%w: group tag of record %d", ErrCorruptBlob, i)
		}
		p.Group = string(raw[m : m+int(glen)])
		raw = raw[m+int(glen):]

		d = append(d, p)
	}
	if len(raw) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptBlob, len(raw))
	}
	return d, nil
}

// #endregion decode
