// Package batch splits large change lists into bounded groups, one commit
// per group.
package batch

import (
	"errors"
	"fmt"
)

// DefaultSize is the group size used when callers do
// not pick one.
const DefaultSize = 100

// ErrInvalidSize is returned for group sizes below one.
var ErrInvalidSize = errors.New("invalid batch size")

// Partition splits items into consecutive groups of at
// most size elements, preserving order. The last group
// may be smaller. Groups share the backing array of
// items. Empty input yields no groups.
func Partition[T any](items []T, size int) ([][]T, error) {
	if size < 1 {
		return nil, fmt.Errorf(
			"%w: %d", ErrInvalidSize, size,
		)
	}

	groups := make([][]T, 0, (len(items)+size-1)/size)

	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		groups = append(groups, items[start:end:end])
	}

	return groups, nil
}
