package codec

// Channel masks for packed 16-bit 5:6:5 color.
const (
	redMask   = 0xF800
	greenMask = 0x07E0
	blueMask  = 0x001F
)

// Expand5 scales a 5-bit channel value to 8 bits so that 0 maps to 0 and 0x1F maps to 0xFF.
func Expand5(v uint8) uint8 {
	v &= 0x1F
	return v<<3 | v>>2
}

// Expand6 scales a 6-bit channel value to 8 bits so that 0 maps to 0 and 0x3F maps to 0xFF.
func Expand6(v uint8) uint8 {
	v &= 0x3F
	return v<<2 | v>>4
}

// DecodeColor splits a packed RGB565 value into 8-bit channels.
// Only the low 16 bits of packed are significant.
func DecodeColor(packed uint32) (r, g, b uint8) {
	pel := uint16(packed)

	r = Expand5(uint8((pel & redMask) >> 11))
	g = Expand6(uint8((pel & greenMask) >> 5))
	b = Expand5(uint8(pel & blueMask))

	return r, g, b
}

