package audio

// Quantize converts a float mix bus into int16 samples, clipping to the int16 range.
// dst and acc must have the same length.
func Quantize(dst []int16, acc []float64) {
	for i, v := range acc {
		dst[i] = clip16(v)
	}
}

// FloatToSample converts a normalised sample in [-1,1] to int16.
func FloatToSample(v float64) int16 {
	return clip16(v * 32767)
}

func clip16(v float64) int16 {
	if v > 32767 {
		return 32767
	} else if v < -32768 {
		return -32768
	}
	return int16(v)
}
