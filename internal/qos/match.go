package qos

// Match implements spec.md §4.3's compatibility table: reader offered ≤
// writer requested, by the ordered sets given there. Returns (true, 0) on
// MATCH, or (false, policy) naming the first incompatible policy checked,
// in the table's own order.
func Match(reader, writer QoS) (bool, PolicyID) {
	if reader.ReliabilityKind > writer.ReliabilityKind {
		return false, Reliability
	}
	if reader.DurabilityKind > writer.DurabilityKind {
		return false, Durability
	}
	if reader.PresentationAccessScope > writer.PresentationAccessScope {
		return false, Presentation
	}
	if reader.DeadlinePeriodNs < writer.DeadlinePeriodNs {
		return false, Deadline
	}
	if reader.LatencyBudgetDurationNs < writer.LatencyBudgetDurationNs {
		return false, LatencyBudget
	}
	if reader.OwnershipKind != writer.OwnershipKind {
		return false, Ownership
	}
	if reader.LivelinessKind > writer.LivelinessKind {
		return false, Liveliness
	}
	if reader.DestinationOrderKind > writer.DestinationOrderKind {
		return false, DestinationOrder
	}
	if !PartitionsOverlap(reader.Partitions, writer.Partitions) {
		return false, Partition
	}
	return true, 0
}

// PartitionsOverlap implements spec.md §4.3's partition rule: at least one
// partition name must match, where '?' matches any one character and '*'
// matches any sequence including empty, and matching is symmetric — if
// either side has wildcards, the glob languages must overlap.
//
// An empty partition list is, by DDS convention, equivalent to the single
// partition "" (the default/nameless partition), so two entities that both
// leave PARTITION unset still match.
func PartitionsOverlap(a, b []string) bool {
	aa := effectivePartitions(a)
	bb := effectivePartitions(b)
	for _, pa := range aa {
		for _, pb := range bb {
			if patternsOverlap(pa, pb) {
				return true
			}
		}
	}
	return false
}

func effectivePartitions(p []string) []string {
	if len(p) == 0 {
		return []string{""}
	}
	return p
}

// patternsOverlap reports whether the glob languages described by a and b
// (where '*' and '?' are wildcards on either side) share at least one
// concrete string. This generalizes a one-sided filepath.Match-style test
// to both sides carrying wildcards, which no library in the pack provides
// — see DESIGN.md.
func patternsOverlap(a, b string) bool {
	type key struct{ i, j int }
	memo := make(map[key]bool, len(a)*len(b)+1)

	var rec func(i, j int) bool
	rec = func(i, j int) bool {
		k := key{i, j}
		if v, ok := memo[k]; ok {
			return v
		}
		var result bool
		switch {
		case i == len(a) && j == len(b):
			result = true
		case i < len(a) && a[i] == '*':
			result = rec(i+1, j) || (j < len(b) && rec(i, j+1))
		case j < len(b) && b[j] == '*':
			result = rec(i, j+1) || (i < len(a) && rec(i+1, j))
		case i < len(a) && j < len(b) && (a[i] == '?' || b[j] == '?' || a[i] == b[j]):
			result = rec(i+1, j+1)
		default:
			result = false
		}
		memo[k] = result
		return result
	}
	return rec(0, 0)
}
