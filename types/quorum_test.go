package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasTwoThirds(t *testing.T) {
	cases := []struct {
		count, total int
		want         bool
	}{
		{0, 0, false},
		{1, 1, true},
		{2, 3, false},
		{3, 3, true},
		{2, 4, false},
		{3, 4, true},
		{4, 6, false},
		{5, 6, true},
		{6, 9, false},
		{7, 9, true},
		{67, 100, true},
		{66, 100, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HasTwoThirds(c.count, c.total), "%d/%d", c.count, c.total)
	}

	for n := 1; n < 50; n++ {
		q := QuorumSize(n)
		assert.True(t, HasTwoThirds(q, n), "n=%d", n)
		assert.False(t, HasTwoThirds(q-1, n), "n=%d", n)
	}
}
