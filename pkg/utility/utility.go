package utility

import "strings"

// IsDigit is c an ASCII decimal digit
//
// Can inline
func IsDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// DigitRun count the consecutive digits in s starting at index start
func DigitRun(s string, start int) int {
	count := 0
	for i := start; i < len(s) && IsDigit(s[i]); i++ {
		count++
	}
	return count
}

// BytesToString convert byte list to string with no allocation
//
// A small cost a few ns in testing is incurred for using a string builder.
// There are no heap allocations using strings.Builder.
func BytesToString(bytes ...byte) string {
	var sb = new(strings.Builder)
	for i := 0; i < len(bytes); i++ {
		sb.WriteByte(bytes[i])
	}
	return sb.String()
}
