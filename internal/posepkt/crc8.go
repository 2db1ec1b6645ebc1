package posepkt

// CRC8 computes the Dallas/Maxim CRC-8 (reflected polynomial 0x8C, initial
// value 0x00) used by the radar deck transmitter.
//
// This is the bitwise LFSR form; the transmitter firmware uses the same loop,
// so keep it bit-for-bit identical rather than swapping in a table variant.
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		for i := 0; i < 8; i++ {
			mix := (crc ^ b) & 0x01
			crc >>= 1
			if mix != 0 {
				crc ^= crcPoly
			}
			b >>= 1
		}
	}
	return crc
}

const crcPoly = 0x8C
