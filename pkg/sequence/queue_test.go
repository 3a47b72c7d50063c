package sequence

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopK(t *testing.T) {
	less := func(a, b int) bool { return a < b }

	t.Run("Basic", func(t *testing.T) {
		tk := NewTopK(3, less)
		for _, v := range []int{5, 1, 9, 3, 7} {
			tk.Offer(v)
		}
		require.Equal(t, []int{1, 3, 5}, tk.Sorted())
		require.True(t, tk.Full())

		worst, ok := tk.Worst()
		require.True(t, ok)
		require.Equal(t, 5, worst)
	})

	t.Run("FewerThanK", func(t *testing.T) {
		tk := NewTopK(10, less)
		require.True(t, tk.Offer(2))
		require.True(t, tk.Offer(1))
		require.False(t, tk.Full())
		require.Equal(t, []int{1, 2}, tk.Sorted())
	})

	t.Run("ZeroK", func(t *testing.T) {
		tk := NewTopK(0, less)
		require.False(t, tk.Offer(1))
		require.Equal(t, 0, tk.Len())
		_, ok := tk.Worst()
		require.False(t, ok)
	})

	t.Run("RejectsWorse", func(t *testing.T) {
		tk := NewTopK(2, less)
		tk.Offer(1)
		tk.Offer(2)
		require.False(t, tk.Offer(3))
		require.True(t, tk.Offer(0))
		require.Equal(t, []int{0, 1}, tk.Sorted())
	})

	t.Run("RandomAgainstSort", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		for trial := 0; trial < 20; trial++ {
			n := rng.Intn(200)
			k := 1 + rng.Intn(16)
			values := make([]int, n)
			tk := NewTopK(k, less)
			for i := range values {
				values[i] = rng.Intn(1000)
				tk.Offer(values[i])
			}
			sort.Ints(values)
			if len(values) > k {
				values = values[:k]
			}
			require.Equal(t, values, tk.Sorted())
		}
	})
}
