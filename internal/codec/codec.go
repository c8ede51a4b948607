// Package codec implements the compression codec (component I): a
// lossless, bit-perfect byte codec over fixed-width float32 vectors, with
// an optional trained dictionary and a checksum on every blob.
//
// Grounded on github.com/klauspost/compress/zstd, wired here the way
// vjache-cie's go.mod carries it into the example pack; the teacher itself
// stores embeddings uncompressed.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/klauspost/compress/zstd"
)

// ChecksumMismatchError reports that a compressed blob's CRC-32 no longer
// matches its payload.
type ChecksumMismatchError struct {
	ID       uint64
	Expected uint32
	Got      uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("codec: checksum mismatch for id %d: expected %08x, got %08x", e.ID, e.Expected, e.Got)
}

// CompressedEmbedding is the on-disk/in-cache representation of one
// compressed vector.
type CompressedEmbedding struct {
	ID             uint64
	Bytes          []byte
	OriginalSize   int
	CompressedSize int
	Dimension      int
	Checksum       uint32
	Ratio          float64
}

// Codec compresses and decompresses fixed-width float32 vectors using
// zstd, optionally salted with a trained dictionary.
type Codec struct {
	level      zstd.EncoderLevel
	dictionary []byte
}

// Option configures a Codec.
type Option func(*Codec)

// WithLevel overrides the zstd compression level. level must fall within
// spec's accepted zstd range of 1..22; out-of-range values are clamped.
func WithLevel(level int) Option {
	return func(c *Codec) {
		if level < 1 {
			level = 1
		}
		if level > 22 {
			level = 22
		}
		c.level = zstd.EncoderLevelFromZstd(level)
	}
}

// rawDictID is the dictionary ID under which a raw-content dictionary is
// registered with both the encoder and the decoder.
const rawDictID uint32 = 1

// WithDictionary salts every encode/decode with a pre-trained dictionary.
func WithDictionary(dict []byte) Option {
	return func(c *Codec) { c.dictionary = dict }
}

// New builds a Codec with the given options applied over sensible
// defaults (zstd level matching SpeedDefault).
func New(opts ...Option) *Codec {
	c := &Codec{level: zstd.SpeedDefault}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compress serializes vec to little-endian f32 bytes, compresses the
// result, and returns the compressed blob plus its checksum and ratio.
func (c *Codec) Compress(vec []float32, id uint64) (*CompressedEmbedding, error) {
	raw := encodeFloat32LE(vec)

	encOpts := []zstd.EOption{zstd.WithEncoderLevel(c.level)}
	if len(c.dictionary) > 0 {
		encOpts = append(encOpts, zstd.WithEncoderDictRaw(rawDictID, c.dictionary))
	}
	enc, err := zstd.NewWriter(nil, encOpts...)
	if err != nil {
		return nil, fmt.Errorf("codec: new encoder: %w", err)
	}
	defer enc.Close()

	compressed := enc.EncodeAll(raw, nil)
	checksum := crc32.ChecksumIEEE(compressed)

	ratio := 1.0
	if len(compressed) > 0 {
		ratio = float64(len(raw)) / float64(len(compressed))
	}

	return &CompressedEmbedding{
		ID:             id,
		Bytes:          compressed,
		OriginalSize:   len(raw),
		CompressedSize: len(compressed),
		Dimension:      len(vec),
		Checksum:       checksum,
		Ratio:          ratio,
	}, nil
}

// Decompress verifies ce's checksum and returns the original vector. A
// checksum mismatch is reported as *ChecksumMismatchError and the payload
// is not decoded.
func (c *Codec) Decompress(ce *CompressedEmbedding) ([]float32, error) {
	if got := crc32.ChecksumIEEE(ce.Bytes); got != ce.Checksum {
		return nil, &ChecksumMismatchError{ID: ce.ID, Expected: ce.Checksum, Got: got}
	}

	var decOpts []zstd.DOption
	if len(c.dictionary) > 0 {
		decOpts = append(decOpts, zstd.WithDecoderDictRaw(rawDictID, c.dictionary))
	}
	dec, err := zstd.NewReader(nil, decOpts...)
	if err != nil {
		return nil, fmt.Errorf("codec: new decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(ce.Bytes, make([]byte, 0, ce.OriginalSize))
	if err != nil {
		return nil, fmt.Errorf("codec: decode: %w", err)
	}

	return decodeFloat32LE(raw, ce.Dimension), nil
}

// BatchCompress compresses vecs in order, preserving index-to-id identity:
// result[i] corresponds to vecs[i] and ids[i].
func (c *Codec) BatchCompress(vecs [][]float32, ids []uint64) ([]*CompressedEmbedding, error) {
	out := make([]*CompressedEmbedding, len(vecs))
	for i, vec := range vecs {
		ce, err := c.Compress(vec, ids[i])
		if err != nil {
			return nil, fmt.Errorf("codec: batch compress index %d: %w", i, err)
		}
		out[i] = ce
	}
	return out, nil
}

// BatchDecompress decompresses entries in order, preserving identity.
func (c *Codec) BatchDecompress(entries []*CompressedEmbedding) ([][]float32, error) {
	out := make([][]float32, len(entries))
	for i, ce := range entries {
		vec, err := c.Decompress(ce)
		if err != nil {
			return nil, fmt.Errorf("codec: batch decompress index %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// minDictionarySamples is the smallest sample count TrainDictionary will
// act on; below this, training degenerates to a no-op since zstd's
// dictionary builder needs enough samples to find stable patterns.
const minDictionarySamples = 8

// maxDictionarySamples bounds how many samples TrainDictionary folds into
// one dictionary, trading a bigger corpus for training time.
const maxDictionarySamples = 100_000

// TrainDictionary builds a dictionary from up to maxDictionarySamples
// vectors. Returns nil, nil if there are too few samples to train on.
func TrainDictionary(samples [][]float32, dictSize int) ([]byte, error) {
	if len(samples) < minDictionarySamples {
		return nil, nil
	}
	if len(samples) > maxDictionarySamples {
		samples = samples[:maxDictionarySamples]
	}
	if dictSize <= 0 {
		dictSize = 16 * 1024
	}

	// klauspost/compress has no ZDICT-style trainer; build a raw
	// content dictionary by concatenating a capped prefix of each sample,
	// for use with WithEncoderDictRaw/WithDecoderDictRaw.
	var buf bytes.Buffer
	perSample := dictSize / len(samples)
	if perSample < 4 {
		perSample = 4
	}
	for _, s := range samples {
		raw := encodeFloat32LE(s)
		if len(raw) > perSample {
			raw = raw[:perSample]
		}
		buf.Write(raw)
		if buf.Len() >= dictSize {
			break
		}
	}

	out := buf.Bytes()
	if len(out) > dictSize {
		out = out[:dictSize]
	}
	return out, nil
}

func encodeFloat32LE(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32LE(buf []byte, dimension int) []float32 {
	vec := make([]float32, dimension)
	for i := 0; i < dimension && (i+1)*4 <= len(buf); i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
