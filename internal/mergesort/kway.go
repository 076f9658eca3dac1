package mergesort

import (
	"cmp"
	"container/heap"
)

// cursor は各チャンクの次に取り出す要素の位置
type cursor[T any] struct {
	value T
	chunk int
	pos   int
}

// mergeHeap は (value, chunk, pos) をキーとする最小ヒープ
type mergeHeap[T any] struct {
	items   []cursor[T]
	compare func(a, b T) int
}

func (h *mergeHeap[T]) Len() int { return len(h.items) }

func (h *mergeHeap[T]) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if c := h.compare(a.value, b.value); c != 0 {
		return c < 0
	}
	if a.chunk != b.chunk {
		return a.chunk < b.chunk
	}
	return a.pos < b.pos
}

func (h *mergeHeap[T]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *mergeHeap[T]) Push(x any) { h.items = append(h.items, x.(cursor[T])) }

func (h *mergeHeap[T]) Pop() any {
	n := len(h.items)
	c := h.items[n-1]
	h.items = h.items[:n-1]
	return c
}

// KWayMerge はソート済みのチャンク群を1つのソート済みスライスにまとめる
// 同じ値の場合は前のチャンク、チャンク内では前の要素が先に並ぶ
func KWayMerge[T cmp.Ordered](chunks [][]T) []T {
	return KWayMergeFunc(chunks, cmp.Compare[T])
}

// KWayMergeFunc は比較関数を指定してk-wayマージを行う
// 各チャンクは compare について昇順である必要がある
func KWayMergeFunc[T any](chunks [][]T, compare func(a, b T) int) []T {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]T, 0, total)

	h := &mergeHeap[T]{
		items:   make([]cursor[T], 0, len(chunks)),
		compare: compare,
	}
	for i, c := range chunks {
		if len(c) == 0 {
			continue
		}
		h.items = append(h.items, cursor[T]{value: c[0], chunk: i})
	}
	heap.Init(h)

	for h.Len() > 0 {
		top := h.items[0]
		out = append(out, top.value)

		next := top.pos + 1
		if next < len(chunks[top.chunk]) {
			// 同じチャンクの次の要素で先頭を置き換える
			h.items[0] = cursor[T]{value: chunks[top.chunk][next], chunk: top.chunk, pos: next}
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}

	return out
}
