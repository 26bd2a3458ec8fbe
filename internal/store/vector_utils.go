package store

import (
	"errors"
	"strconv"
)

// parseVectorJSON parses a JSON array of numbers into dest (reset first),
// avoiding encoding/json's reflection on the hot ranking path.
func parseVectorJSON(data []byte, dest []float32) ([]float32, error) {
	dest = dest[:0]

	i := skipSpace(data, 0)
	if i == len(data) {
		return dest, nil
	}
	if data[i] != '[' {
		return nil, errors.New("expected '[' at start")
	}
	i++

	for {
		i = skipSpace(data, i)
		if i == len(data) {
			return nil, errors.New("unterminated array")
		}
		if data[i] == ']' {
			return dest, nil
		}

		start := i
		for i < len(data) && data[i] != ',' && data[i] != ']' && !isSpace(data[i]) {
			i++
		}
		f, err := strconv.ParseFloat(string(data[start:i]), 32)
		if err != nil {
			return nil, err
		}
		dest = append(dest, float32(f))

		i = skipSpace(data, i)
		if i < len(data) && data[i] == ',' {
			i++
		}
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func skipSpace(data []byte, i int) int {
	for i < len(data) && isSpace(data[i]) {
		i++
	}
	return i
}
