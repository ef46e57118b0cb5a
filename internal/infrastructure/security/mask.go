package security

// Mask replaces the runes in [start, end) with '*'. The text is returned
// unchanged when it is shorter than start or the range is empty.
func Mask(text string, start, end int) string {
	runes := []rune(text)
	if start < 0 || len(runes) <= start || end <= start {
		return text
	}
	if end > len(runes) {
		end = len(runes)
	}
	for i := start; i < end; i++ {
		runes[i] = '*'
	}
	return string(runes)
}

// MaskPhone hides the middle four digits of an 11-digit mobile number.
func MaskPhone(phone string) string {
	if len([]rune(phone)) < 11 {
		return phone
	}
	return Mask(phone, 3, 7)
}

// MaskCardNo keeps the first and last four digits of a card number.
func MaskCardNo(cardNo string) string {
	n := len([]rune(cardNo))
	if n < 8 {
		return cardNo
	}
	return Mask(cardNo, 4, n-4)
}
