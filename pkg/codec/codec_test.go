package codec

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMuLaw_RoundTrip_WithinQuantizationError(t *testing.T) {
	samples := []int16{0, 100, -100, 8000, -8000, 16000, -16000, 32000, -32000}
	encoded := MuLawEncode(samples)
	decoded := MuLawDecode(encoded)

	require.Len(t, decoded, len(samples))
	for i, want := range samples {
		got := decoded[i]
		diff := int(want) - int(got)
		if diff < 0 {
			diff = -diff
		}
		assert.LessOrEqualf(t, diff, 256, "sample %d: want ~%d got %d", i, want, got)
	}
}

func TestMuLaw_RoundTrip_StableUnderSecondPass(t *testing.T) {
	samples := []int16{0, 8000, 16000, 24000}
	once := MuLawDecode(MuLawEncode(samples))
	twice := MuLawDecode(MuLawEncode(once))
	assert.Equal(t, once, twice)
}

func TestDownmix_Stereo(t *testing.T) {
	stereo := []int16{100, 200, 300, 400}
	mono := Downmix(stereo, 2)
	assert.Equal(t, []int16{150, 350}, mono)
}

func TestResample_NoOpWhenRatesMatch(t *testing.T) {
	samples := []int16{1, 2, 3}
	assert.Equal(t, samples, Resample(samples, 8000, 8000))
}

func TestCarrierOut_S6Scenario(t *testing.T) {
	// 16kHz mono PCM -> resample to 8kHz -> mu-law -> base64.
	samples := []int16{0, 8000, 16000, 24000}
	narrowband := CarrierOut(samples, 16000, 1)
	require.Len(t, narrowband, 2)

	encoded := MuLawEncode(narrowband)
	b64 := base64.StdEncoding.EncodeToString(encoded)
	require.NotEmpty(t, b64)

	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	decoded := MuLawDecode(raw)
	require.Len(t, decoded, 2)

	for i, want := range narrowband {
		diff := int(want) - int(decoded[i])
		if diff < 0 {
			diff = -diff
		}
		assert.LessOrEqual(t, diff, 256)
	}
}

func TestParseWAV_MonoPCM16(t *testing.T) {
	wav := buildWAV(t, 16000, 1, []int16{100, -100, 200})
	audio, err := ParseWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, 16000, audio.SampleRate)
	assert.Equal(t, []int16{100, -100, 200}, audio.Samples)
}

func TestParseWAV_StereoDownmixed(t *testing.T) {
	wav := buildWAV(t, 8000, 2, []int16{100, 200, 300, 400})
	audio, err := ParseWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, []int16{150, 350}, audio.Samples)
}

func TestParseWAV_RejectsNonRIFF(t *testing.T) {
	_, err := ParseWAV([]byte("not a wav file at all"))
	assert.Error(t, err)
}

// buildWAV constructs a minimal RIFF/WAVE PCM16 container for tests.
func buildWAV(t *testing.T, sampleRate int, channels int, samples []int16) []byte {
	t.Helper()

	dataBytes := make([]byte, len(samples)*2)
	for i, s := range samples {
		dataBytes[i*2] = byte(uint16(s))
		dataBytes[i*2+1] = byte(uint16(s) >> 8)
	}

	fmtChunk := make([]byte, 16)
	putU16 := func(b []byte, off int, v uint16) { b[off] = byte(v); b[off+1] = byte(v >> 8) }
	putU32 := func(b []byte, off int, v uint32) {
		b[off] = byte(v)
		b[off+1] = byte(v >> 8)
		b[off+2] = byte(v >> 16)
		b[off+3] = byte(v >> 24)
	}
	putU16(fmtChunk, 0, 1) // PCM
	putU16(fmtChunk, 2, uint16(channels))
	putU32(fmtChunk, 4, uint32(sampleRate))
	byteRate := uint32(sampleRate * channels * 2)
	putU32(fmtChunk, 8, byteRate)
	putU16(fmtChunk, 12, uint16(channels*2))
	putU16(fmtChunk, 14, 16)

	var buf []byte
	buf = append(buf, []byte("RIFF")...)
	buf = append(buf, make([]byte, 4)...) // size placeholder
	buf = append(buf, []byte("WAVE")...)

	buf = append(buf, []byte("fmt ")...)
	sizeBuf := make([]byte, 4)
	putU32(sizeBuf, 0, uint32(len(fmtChunk)))
	buf = append(buf, sizeBuf...)
	buf = append(buf, fmtChunk...)

	buf = append(buf, []byte("data")...)
	putU32(sizeBuf, 0, uint32(len(dataBytes)))
	buf = append(buf, sizeBuf...)
	buf = append(buf, dataBytes...)

	putU32(buf, 4, uint32(len(buf)-8))
	return buf
}
