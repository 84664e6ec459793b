package voice

import "math"

// RMSEnergy computes the normalized root-mean-square energy of a 16-bit PCM
// frame, used by barge-in detection.
func RMSEnergy(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range frame {
		n := float64(s) / 32768.0
		sumSquares += n * n
	}
	return math.Sqrt(sumSquares / float64(len(frame)))
}
