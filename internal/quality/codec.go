package quality

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// ErrParse reports a blob that does not decode as a NOVAQ record.
var ErrParse = errors.New("quality: parse failure")

// IsParseFailure reports whether err came from decoding a blob.
func IsParseFailure(err error) bool { return errors.Is(err, ErrParse) }

// Config is the quantizer configuration embedded in a NOVAQ blob. Only the
// first four fields take part in validation; the training parameters are
// decoded so the record layout lines up.
type Config struct {
	TargetBits           float32
	NumSubspaces         uint64
	CodebookSizeL1       uint64
	CodebookSizeL2       uint64
	OutlierThreshold     float32
	TeacherModelPath     *string
	RefinementIterations uint64
	KLWeight             float32
	CosineWeight         float32
	LearningRate         float32
	Seed                 uint64
}

// Model is a decoded NOVAQ record.
type Model struct {
	Config           Config
	CompressionRatio float32
	BitAccuracy      float32
}

// The wire layout is fixed-width little endian: u64 for sizes and counts,
// IEEE-754 f32 for reals, a one-byte tag for optional values and a u64
// length prefix for strings. Bytes after a complete record are ignored.

type decoder struct {
	b   []byte
	off int
}

func (d *decoder) take(n int, what string) ([]byte, error) {
	if n < 0 || len(d.b)-d.off < n {
		return nil, fmt.Errorf("%w: short read for %s at offset %d", ErrParse, what, d.off)
	}
	p := d.b[d.off : d.off+n]
	d.off += n
	return p, nil
}

func (d *decoder) u64(what string) (uint64, error) {
	p, err := d.take(8, what)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

func (d *decoder) f32(what string) (float32, error) {
	p, err := d.take(4, what)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(p)), nil
}

func (d *decoder) optString(what string) (*string, error) {
	tag, err := d.take(1, what)
	if err != nil {
		return nil, err
	}
	switch tag[0] {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, fmt.Errorf("%w: invalid option tag %d for %s", ErrParse, tag[0], what)
	}
	n, err := d.u64(what + " length")
	if err != nil {
		return nil, err
	}
	if n > uint64(len(d.b)-d.off) {
		return nil, fmt.Errorf("%w: %s length %d exceeds blob", ErrParse, what, n)
	}
	p, err := d.take(int(n), what)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(p) {
		return nil, fmt.Errorf("%w: %s is not valid utf-8", ErrParse, what)
	}
	s := string(p)
	return &s, nil
}

// Decode parses a NOVAQ blob.
func Decode(blob []byte) (Model, error) {
	d := &decoder{b: blob}
	var m Model
	var err error
	c := &m.Config
	if c.TargetBits, err = d.f32("target_bits"); err != nil {
		return Model{}, err
	}
	if c.NumSubspaces, err = d.u64("num_subspaces"); err != nil {
		return Model{}, err
	}
	if c.CodebookSizeL1, err = d.u64("codebook_size_l1"); err != nil {
		return Model{}, err
	}
	if c.CodebookSizeL2, err = d.u64("codebook_size_l2"); err != nil {
		return Model{}, err
	}
	if c.OutlierThreshold, err = d.f32("outlier_threshold"); err != nil {
		return Model{}, err
	}
	if c.TeacherModelPath, err = d.optString("teacher_model_path"); err != nil {
		return Model{}, err
	}
	if c.RefinementIterations, err = d.u64("refinement_iterations"); err != nil {
		return Model{}, err
	}
	if c.KLWeight, err = d.f32("kl_weight"); err != nil {
		return Model{}, err
	}
	if c.CosineWeight, err = d.f32("cosine_weight"); err != nil {
		return Model{}, err
	}
	if c.LearningRate, err = d.f32("learning_rate"); err != nil {
		return Model{}, err
	}
	if c.Seed, err = d.u64("seed"); err != nil {
		return Model{}, err
	}
	if m.CompressionRatio, err = d.f32("compression_ratio"); err != nil {
		return Model{}, err
	}
	if m.BitAccuracy, err = d.f32("bit_accuracy"); err != nil {
		return Model{}, err
	}
	return m, nil
}

// Encode serializes m in the layout Decode reads.
func Encode(m Model) []byte {
	c := m.Config
	out := make([]byte, 0, 80)
	putF32 := func(v float32) { out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v)) }
	putU64 := func(v uint64) { out = binary.LittleEndian.AppendUint64(out, v) }

	putF32(c.TargetBits)
	putU64(c.NumSubspaces)
	putU64(c.CodebookSizeL1)
	putU64(c.CodebookSizeL2)
	putF32(c.OutlierThreshold)
	if c.TeacherModelPath == nil {
		out = append(out, 0)
	} else {
		out = append(out, 1)
		putU64(uint64(len(*c.TeacherModelPath)))
		out = append(out, *c.TeacherModelPath...)
	}
	putU64(c.RefinementIterations)
	putF32(c.KLWeight)
	putF32(c.CosineWeight)
	putF32(c.LearningRate)
	putU64(c.Seed)
	putF32(m.CompressionRatio)
	putF32(m.BitAccuracy)
	return out
}
