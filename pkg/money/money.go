// Package money formats rupee amounts for display.
package money

import (
	"strconv"
	"strings"
)

// FormatINR renders a whole-rupee amount with the rupee sign and Indian
// digit grouping, e.g. 1234567 -> "₹12,34,567".
func FormatINR(amount int64) string {
	neg := amount < 0
	digits := strconv.FormatInt(amount, 10)
	if neg {
		digits = digits[1:]
	}

	var b strings.Builder
	if neg {
		b.WriteString("-")
	}
	b.WriteString("₹")
	b.WriteString(group(digits))
	return b.String()
}

// group places a comma before the last three digits and then after every
// two digits further left.
func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	parts = append([]string{head}, parts...)
	return strings.Join(parts, ",") + "," + tail
}
