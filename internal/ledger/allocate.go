package ledger

// allocate splits total across weights proportionally. Integer remainders go to
// the last bucket so the parts always sum to total. With no weight everything
// lands in the first bucket.
func allocate(total int64, weights []int64) []int64 {
	parts := make([]int64, len(weights))
	if len(weights) == 0 {
		return parts
	}
	weightSum := sum(weights)
	if weightSum == 0 {
		parts[0] = total
		return parts
	}
	var assigned int64
	for i, w := range weights[:len(weights)-1] {
		parts[i] = total * w / weightSum
		assigned += parts[i]
	}
	parts[len(parts)-1] = total - assigned
	return parts
}

func sum(values []int64) int64 {
	var total int64
	for _, v := range values {
		total += v
	}
	return total
}
