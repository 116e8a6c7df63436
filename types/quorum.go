package types

// HasTwoThirds reports whether count is strictly more than two thirds of
// total. Integer form of count/total > 2/3.
func HasTwoThirds(count, total int) bool {
	if total <= 0 {
		return false
	}
	return count*3 > total*2
}

// QuorumSize returns the smallest count for which HasTwoThirds holds.
func QuorumSize(total int) int {
	return total*2/3 + 1
}
