// Package ruleset mints and parses the rule_set_NNN tags that correlate a
// spreadsheet row with the OSCAL properties it produced.
package ruleset

import (
	"fmt"
	"strconv"
	"strings"
)

// Prefix is the leading text of every rule-set tag.
const Prefix = "rule_set_"

// Parse extracts the number from a rule-set tag.
func Parse(tag string) (int, bool) {
	if !strings.HasPrefix(tag, Prefix) {
		return 0, false
	}
	digits := tag[len(Prefix):]
	if digits == "" {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsTag reports whether s is a rule-set tag.
func IsTag(s string) bool {
	_, ok := Parse(s)
	return ok
}

// MaxNumber returns the largest rule-set number among tags, or -1 if there is none.
func MaxNumber(tags []string) int {
	highest := -1
	for _, t := range tags {
		if n, ok := Parse(t); ok && n > highest {
			highest = n
		}
	}
	return highest
}

// Width returns the zero-padding width for a run that adds additions tags on
// top of existingMax: floor(log10(existingMax + additions)) + 1, and at least 1.
func Width(existingMax, additions int) int {
	top := existingMax + additions
	if top < 1 {
		return 1
	}
	return len(strconv.Itoa(top))
}

// Minter hands out fresh rule-set tags. Numbers increase monotonically from
// existingMax+1 so a deleted tag is never reused.
type Minter struct {
	next  int
	width int
}

// NewMinter creates a Minter seeded above existingMax, sized for additions tags.
func NewMinter(existingMax, additions int) *Minter {
	return &Minter{
		next:  existingMax + 1,
		width: Width(existingMax, additions),
	}
}

// Next returns the next tag.
func (m *Minter) Next() string {
	tag := Format(m.next, m.width)
	m.next++
	return tag
}

// Width returns the padding width used for minted tags.
func (m *Minter) Width() int {
	return m.width
}

// Format renders a rule-set tag with the given zero-padding width.
func Format(n, width int) string {
	return fmt.Sprintf("%s%0*d", Prefix, width, n)
}
