// Package feed turns session state into the text a participant reads: jam
// icons, activity-feed lines, progress clocks and transient notices.
package feed

import (
	"fmt"
	"strings"
)

// IntenseThreshold is the jam count above which a single intense icon
// replaces the tally.
const IntenseThreshold = 50

const (
	iconTen     = "💙"
	iconFive    = "💚"
	iconOne     = "❤️"
	iconIntense = "❤️‍🔥"
)

// JamIcons is the icon breakdown of a jam count.
type JamIcons struct {
	Count   int
	Intense bool
	Tens    int
	Fives   int
	Ones    int
}

// Jams breaks n into tens, fives and ones, or a single intense indicator when
// n exceeds IntenseThreshold.
func Jams(n int) JamIcons {
	if n < 0 {
		n = 0
	}
	if n > IntenseThreshold {
		return JamIcons{Count: n, Intense: true}
	}
	return JamIcons{
		Count: n,
		Tens:  n / 10,
		Fives: (n % 10) / 5,
		Ones:  n % 5,
	}
}

// String renders the icons.
func (j JamIcons) String() string {
	if j.Intense {
		return iconIntense
	}
	var b strings.Builder
	b.WriteString(strings.Repeat(iconTen, j.Tens))
	b.WriteString(strings.Repeat(iconFive, j.Fives))
	b.WriteString(strings.Repeat(iconOne, j.Ones))
	return b.String()
}

// Label is the hover text for the icons.
func (j JamIcons) Label() string {
	return fmt.Sprintf("%d jams", j.Count)
}
