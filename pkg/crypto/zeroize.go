package crypto

// Zeroize overwrites b with zeros. Callers use this to wipe key material
// once it is no longer needed; the slice itself remains usable.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroizeMultiple wipes every provided slice.
func ZeroizeMultiple(slices ...[]byte) {
	for _, b := range slices {
		Zeroize(b)
	}
}
