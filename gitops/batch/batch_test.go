package batch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/gitops_pr/gitops/batch"
)

func TestPartition_sizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		count int
		size  int
		want  []int
	}{
		{name: "250 by 100", count: 250, size: 100, want: []int{100, 100, 50}},
		{name: "exact multiple", count: 200, size: 100, want: []int{100, 100}},
		{name: "smaller than size", count: 3, size: 100, want: []int{3}},
		{name: "size one", count: 3, size: 1, want: []int{1, 1, 1}},
		{name: "empty", count: 0, size: 10, want: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			items := make([]int, tt.count)
			for i := range items {
				items[i] = i
			}

			groups, err := batch.Partition(items, tt.size)
			require.NoError(t, err)

			got := make([]int, 0, len(groups))
			for _, g := range groups {
				got = append(got, len(g))
			}

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPartition_preserves_order(t *testing.T) {
	t.Parallel()

	items := []string{"a", "b", "c", "d", "e"}

	groups, err := batch.Partition(items, 2)
	require.NoError(t, err)

	assert.Equal(
		t,
		[][]string{{"a", "b"}, {"c", "d"}, {"e"}},
		groups,
	)
}

func TestPartition_groups_do_not_overlap_on_append(
	t *testing.T,
) {
	t.Parallel()

	items := []int{1, 2, 3, 4}

	groups, err := batch.Partition(items, 2)
	require.NoError(t, err)

	_ = append(groups[0], 99)

	assert.Equal(t, []int{3, 4}, groups[1])
}

func TestPartition_invalid_size(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, -1} {
		_, err := batch.Partition([]int{1}, size)
		assert.ErrorIs(t, err, batch.ErrInvalidSize)
	}
}
