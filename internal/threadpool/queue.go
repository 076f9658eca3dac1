package threadpool

import "sync"

// queue は上限のないMPMCのFIFOキュー
// 受信側はmuで排他され、同時に1つのワーカーだけが取り出しを行う
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*job
	head   int
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push はジョブを末尾に追加する。closeされていればfalseを返す
func (q *queue) push(j *job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, j)
	q.cond.Signal()
	return true
}

// pop は先頭のジョブを取り出す。空であればブロックする
// closeされていて空の場合のみ ok=false を返す（切断）
func (q *queue) pop() (j *job, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == len(q.items) && !q.closed {
		q.cond.Wait()
	}
	if q.head == len(q.items) {
		return nil, false
	}

	j = q.items[q.head]
	q.items[q.head] = nil
	q.head++

	// 消費済みの領域が半分を超えたら詰める
	if q.head > len(q.items)/2 {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return j, true
}

// close は送信側の切断を通知する。残っているジョブは引き続き取り出せる
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
