// internal/game/palette.go
//
// Palette handling: the fixed set of colors, parsing from wire strings,
// validation of codes and random secret generation.

package game

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	DefaultSlotCount = 4
	MinSlotCount     = 2
	MaxSlotCount     = 8
)

var (
	ErrInvalidColor     = errors.New("invalid color")
	ErrInvalidSlotCount = errors.New("invalid slot count")
)

// Palette lists every color in display order.
var Palette = []Color{Red, Blue, Green, Yellow, Purple, Cyan}

// paletteIndex maps a color to its position in Palette.
var paletteIndex = func() map[Color]int {
	m := make(map[Color]int, len(Palette))
	for i, c := range Palette {
		m[c] = i
	}
	return m
}()

// ParseColor converts a wire string into a Color (case-insensitive).
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := paletteIndex[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return c, nil
}

// ParseCode parses every entry of ss with ParseColor.
func ParseCode(ss []string) (Code, error) {
	out := make(Code, len(ss))
	for i, s := range ss {
		c, err := ParseColor(s)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// Valid reports whether c is a palette color.
func (c Color) Valid() bool {
	_, ok := paletteIndex[c]
	return ok
}

// Complete reports whether the code has exactly n slots, all set to palette colors.
func (code Code) Complete(n int) bool {
	if len(code) != n {
		return false
	}
	for _, c := range code {
		if !c.Valid() {
			return false
		}
	}
	return true
}

// Equal compares two codes slot by slot.
func (code Code) Equal(other Code) bool {
	if len(code) != len(other) {
		return false
	}
	for i := range code {
		if code[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (code Code) Clone() Code {
	if code == nil {
		return nil
	}
	out := make(Code, len(code))
	copy(out, code)
	return out
}

// String renders the code as a comma separated list.
func (code Code) String() string {
	parts := make([]string, len(code))
	for i, c := range code {
		if c == "" {
			parts[i] = "_"
			continue
		}
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

// ValidSlotCount checks n against the supported range.
func ValidSlotCount(n int) error {
	if n < MinSlotCount || n > MaxSlotCount {
		return fmt.Errorf("%w: %d (want %d-%d)", ErrInvalidSlotCount, n, MinSlotCount, MaxSlotCount)
	}
	return nil
}

// RandomSecret draws n colors uniformly from the palette using crypto/rand.
func RandomSecret(n int) (Code, error) {
	if err := ValidSlotCount(n); err != nil {
		return nil, err
	}
	max := big.NewInt(int64(len(Palette)))
	out := make(Code, n)
	for i := range out {
		x, err := rand.Int(rand.Reader, max)
		if err != nil {
			return nil, err
		}
		out[i] = Palette[x.Int64()]
	}
	return out, nil
}
