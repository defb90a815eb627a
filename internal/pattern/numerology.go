package pattern

import (
	"strings"
	"time"
)

// Numerology holds simplified Pythagorean numbers for a name and birth date.
type Numerology struct {
	LifePath   int `json:"life_path"`
	Expression int `json:"expression"`
	SoulUrge   int `json:"soul_urge"`
}

// Pythagorean computes the numbers from the calendar date of birth (in the
// birth's own location) and the lowercased name's character codes.
func Pythagorean(name string, birth time.Time) Numerology {
	lifePath := reduce(birth.Day() + int(birth.Month()) + birth.Year())

	sum := 0
	for _, r := range strings.ToLower(name) {
		sum += int(r)
	}
	expression := reduce(sum)

	return Numerology{
		LifePath:   lifePath,
		Expression: expression,
		SoulUrge:   reduce(lifePath + expression),
	}
}

// reduce sums digits until one remains. Master numbers 11, 22 and 33 are
// returned unchanged when passed in directly.
func reduce(n int) int {
	if n == 11 || n == 22 || n == 33 {
		return n
	}
	if n < 0 {
		n = -n
	}
	for n > 9 {
		s := 0
		for ; n > 0; n /= 10 {
			s += n % 10
		}
		n = s
	}
	return n
}
