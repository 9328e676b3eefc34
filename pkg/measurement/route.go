package measurement

import (
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Route yields the address groups along the trace: the probe address, one group per
// hop, and the requested destination name. A hop group holds the sorted, deduplicated
// addresses of its successful replies and is empty for error hops and silent hops.
func (t *TracerouteResult) Route() iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		if !yield([]string{t.From}) {
			return
		}
		for _, hop := range t.Hops {
			if !yield(hop.Addresses()) {
				return
			}
		}
		yield([]string{t.DstName})
	}
}

// Addresses returns the sorted, deduplicated source addresses of the hop's replies.
func (h Hop) Addresses() []string {
	addrs := []string{}
	for reply := range h.SuccessfulReplies() {
		addrs = append(addrs, reply.From)
	}
	slices.Sort(addrs)
	return slices.Compact(addrs)
}

// RouteWithTimeouts yields the hop groups of Route with every run of empty groups
// replaced by placeholders "Timeout n: <previous group>", n counting from 0 within the
// run. The probe address only seeds the comparison and is not yielded. Runs of equal
// non-empty groups are yielded once per hop.
func (t *TracerouteResult) RouteWithTimeouts() iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		next, stop := iter.Pull(t.Route())
		defer stop()

		prev, ok := next()
		if !ok {
			return
		}
		group, ok := next()
		for ok {
			count := 1
			cur, more := next()
			for more && slices.Equal(cur, group) {
				count++
				cur, more = next()
			}
			if !yieldRun(yield, prev, group, count) {
				return
			}
			prev = group
			group, ok = cur, more
		}
	}
}

func yieldRun(yield func([]string) bool, prev, group []string, count int) bool {
	if len(group) > 0 {
		for range count {
			if !yield(slices.Clone(group)) {
				return false
			}
		}
		return true
	}
	label := strings.Join(prev, ",")
	for n := range count {
		if !yield([]string{fmt.Sprintf("Timeout %d: %s", n, label)}) {
			return false
		}
	}
	return true
}
