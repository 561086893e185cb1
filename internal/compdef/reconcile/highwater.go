package reconcile

import (
	"slices"
	"strconv"

	oscal "github.com/defenseunicorns/go-oscal/src/types/oscal-1-1-3"
)

// Metadata property recording the highest rule-set number ever minted for the
// document. Tags below it are retired even after their rules are deleted.
const (
	HighWaterProp = "rule_set_high_water"
	HighWaterNs   = "https://github.com/sigcomply/compdef-cli/ns/oscal"
)

// highWater returns the recorded high-water mark, or -1 if there is none.
func highWater(md *oscal.Metadata) int {
	props := propsOf(md.Props)
	i := slices.IndexFunc(props, func(p oscal.Property) bool { return p.Name == HighWaterProp })
	if i < 0 {
		return -1
	}
	n, err := strconv.Atoi(props[i].Value)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// setHighWater records n as the high-water mark.
func setHighWater(md *oscal.Metadata, n int) {
	if n < 0 {
		return
	}
	value := strconv.Itoa(n)
	props := propsOf(md.Props)
	i := slices.IndexFunc(props, func(p oscal.Property) bool { return p.Name == HighWaterProp })
	if i >= 0 {
		props[i].Value = value
		return
	}
	md.Props = propsPtr(append(props, oscal.Property{Name: HighWaterProp, Value: value, Ns: HighWaterNs}))
}
