package audiocore

import (
	"encoding/binary"
	"math"
)

// Sample conversions shared by sinks, sources and drivers. They operate on
// caller-provided slices and never allocate.

// FloatToI16 converts one sample with rounding and clamping.
func FloatToI16(x float32) int16 {
	v := math.Round(float64(x) * 32768.0)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// I16ToFloat converts one sample to [-1, 1).
func I16ToFloat(s int16) float32 {
	return float32(s) * (1.0 / 32768.0)
}

// EncodeFloat32 writes samples as little-endian float32 into dst.
func EncodeFloat32(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}

// DecodeFloat32 reads little-endian float32 samples from src.
func DecodeFloat32(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}

// EncodeI16 converts float samples to little-endian int16 in dst.
func EncodeI16(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(FloatToI16(s)))
	}
}

// DecodeI16 converts little-endian int16 samples in src to float.
func DecodeI16(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = I16ToFloat(int16(binary.LittleEndian.Uint16(src[i*2:])))
	}
}

// Encode writes samples into dst in format f.
func Encode(f Format, dst []byte, samples []float32) {
	if f == FormatI16 {
		EncodeI16(dst, samples)
		return
	}
	EncodeFloat32(dst, samples)
}

// Decode reads samples from src in format f.
func Decode(f Format, dst []float32, src []byte) {
	if f == FormatI16 {
		DecodeI16(dst, src)
		return
	}
	DecodeFloat32(dst, src)
}

// Silence zeroes a byte buffer. Zero bytes are silence for both formats.
func Silence(buf []byte) {
	clear(buf)
}
