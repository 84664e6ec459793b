package codec

import (
	"encoding/binary"
	"fmt"
)

const (
	wavFormatPCM = 1
)

// WAVAudio is the decoded result of ParseWAV: mono 16-bit PCM at the
// container's declared sample rate.
type WAVAudio struct {
	SampleRate int
	Samples    []int16
}

// ParseWAV validates a RIFF/WAVE container, requires a PCM "fmt " chunk at
// 16-bit depth, and downmixes multi-channel "data" to mono by arithmetic
// mean.
func ParseWAV(b []byte) (*WAVAudio, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, fmt.Errorf("codec: not a RIFF/WAVE container")
	}

	var (
		sampleRate    int
		bitsPerSample uint16
		numChannels   uint16
		formatTag     uint16
		havePCM       []int16
	)

	pos := 12
	for pos+8 <= len(b) {
		chunkID := string(b[pos : pos+4])
		chunkSize := binary.LittleEndian.Uint32(b[pos+4 : pos+8])
		chunkStart := pos + 8
		chunkEnd := chunkStart + int(chunkSize)
		if chunkEnd > len(b) {
			return nil, fmt.Errorf("codec: %s chunk overruns container", chunkID)
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, fmt.Errorf("codec: fmt chunk too small")
			}
			formatTag = binary.LittleEndian.Uint16(b[chunkStart : chunkStart+2])
			numChannels = binary.LittleEndian.Uint16(b[chunkStart+2 : chunkStart+4])
			sampleRate = int(binary.LittleEndian.Uint32(b[chunkStart+4 : chunkStart+8]))
			bitsPerSample = binary.LittleEndian.Uint16(b[chunkStart+14 : chunkStart+16])
		case "data":
			if formatTag != wavFormatPCM {
				return nil, fmt.Errorf("codec: unsupported WAV format tag %d (want PCM)", formatTag)
			}
			if bitsPerSample != 16 {
				return nil, fmt.Errorf("codec: unsupported WAV bit depth %d (want 16)", bitsPerSample)
			}
			raw := b[chunkStart:chunkEnd]
			havePCM = make([]int16, len(raw)/2)
			for i := range havePCM {
				havePCM[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
			}
		}

		// Chunks are padded to an even byte boundary.
		advance := int(chunkSize)
		if chunkSize%2 == 1 {
			advance++
		}
		pos = chunkStart + advance
	}

	if havePCM == nil {
		return nil, fmt.Errorf("codec: no data chunk found")
	}
	if numChannels == 0 {
		numChannels = 1
	}

	return &WAVAudio{
		SampleRate: sampleRate,
		Samples:    Downmix(havePCM, int(numChannels)),
	}, nil
}
