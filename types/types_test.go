package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	s := SetWith(3, 7)
	require.Len(t, s, 2)
	require.True(t, s.Has(3))
	require.False(t, s.Has(5))

	s.Insert(5, 3)
	require.Equal(t, []int{3, 5, 7}, Sorted(s))

	u := Union(s, SetWith(1, 7))
	require.Equal(t, []int{1, 3, 5, 7}, Sorted(u))
	require.Len(t, s, 3)
}
