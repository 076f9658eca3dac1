package bench

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
)

var (
	// ErrNotSorted indicates the output is not in non-decreasing order
	ErrNotSorted = errors.New("output is not sorted")

	// ErrNotPermutation indicates the output lost or gained elements
	ErrNotPermutation = errors.New("output is not a permutation of the input")
)

// RandomSlice は n 個のランダムな int64 を生成する
// seed が0の場合は毎回異なるシードを使う
func RandomSlice(n int, seed uint64) []int64 {
	if seed == 0 {
		seed = rand.Uint64()
	}
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	out := make([]int64, n)
	for i := range out {
		out[i] = int64(r.Uint64())
	}
	return out
}

// Verify は sorted が original を昇順に並べ替えたものかを検証する
func Verify(original, sorted []int64) error {
	if len(original) != len(sorted) {
		return fmt.Errorf("%w: length %d, want %d", ErrNotPermutation, len(sorted), len(original))
	}
	if !slices.IsSorted(sorted) {
		return ErrNotSorted
	}

	want := slices.Clone(original)
	slices.Sort(want)
	if i := mismatch(want, sorted); i >= 0 {
		return fmt.Errorf("%w: index %d has %d, want %d", ErrNotPermutation, i, sorted[i], want[i])
	}
	return nil
}

func mismatch(a, b []int64) int {
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}
	return -1
}
