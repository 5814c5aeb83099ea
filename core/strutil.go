package core

// itoa converts an integer to a string without using fmt package
// This is a lightweight alternative for embedded systems
func itoa(n int) string {
	if n < 0 {
		return "-" + utoa(uint32(-n))
	}
	return utoa(uint32(n))
}

// utoa converts an unsigned integer to a string
func utoa(n uint32) string {
	if n == 0 {
		return "0"
	}

	var buf [10]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}

	return string(buf[pos:])
}

// ftoa formats a non-negative float with a fixed number of decimals,
// rounding half up. Used for LCD text where fmt is too heavy.
func ftoa(v float64, decimals int) string {
	negative := v < 0
	if negative {
		v = -v
	}

	scale := 1.0
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	scaled := uint64(v*scale + 0.5)
	whole := scaled / uint64(scale)
	frac := scaled % uint64(scale)

	s := utoa(uint32(whole))
	if decimals > 0 {
		digits := make([]byte, decimals)
		for i := decimals - 1; i >= 0; i-- {
			digits[i] = byte('0' + frac%10)
			frac /= 10
		}
		s += "." + string(digits)
	}
	if negative {
		s = "-" + s
	}
	return s
}
