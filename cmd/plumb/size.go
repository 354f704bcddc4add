package main

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a byte-count flag accepting plain integers and the usual
// size suffixes: k/M/G for powers of 1000, Ki/Mi/Gi for powers of 1024.
type ByteSize int

// Methods to implement pflag.Value:
func (b *ByteSize) String() string {
	return strconv.Itoa(int(*b))
}

func (b *ByteSize) Set(s string) error {
	multipliers := map[string]int64{
		"":   1,
		"k":  1000,
		"m":  1000 * 1000,
		"g":  1000 * 1000 * 1000,
		"ki": 1024,
		"mi": 1024 * 1024,
		"gi": 1024 * 1024 * 1024,
	}
	digits := strings.TrimRight(s, "kKmMgGiI")
	multiplier, ok := multipliers[strings.ToLower(s[len(digits):])]
	if !ok {
		return fmt.Errorf("not a valid size suffix: %q", s[len(digits):])
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return fmt.Errorf("error parsing size %q: %s", s, err)
	}
	*b = ByteSize(n * multiplier)
	return nil
}

func (b *ByteSize) Type() string {
	return "size"
}
