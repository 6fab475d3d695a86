package ledger

import (
	"sort"

	"tradeflow/internal/model"
)

// orderQueue 有界优先队列，按优先级降序，同优先级按到达顺序
type orderQueue struct {
	max   int
	items []*model.Order
}

func newOrderQueue(max int) *orderQueue {
	return &orderQueue{max: max}
}

// push 插入订单，队列已满时先淘汰队尾（最低优先级、最晚到达）的订单
func (q *orderQueue) push(o *model.Order) (evicted []*model.Order) {
	for q.max > 0 && len(q.items) >= q.max {
		last := len(q.items) - 1
		evicted = append(evicted, q.items[last])
		q.items = q.items[:last]
	}
	// 插到第一个优先级更低的位置之前，保持同优先级的到达顺序
	i := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].Priority < o.Priority
	})
	q.items = append(q.items, nil)
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = o
	return evicted
}

func (q *orderQueue) pop() (*model.Order, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	o := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return o, true
}

func (q *orderQueue) remove(id string) bool {
	for i, o := range q.items {
		if o.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// reposition 优先级或内容变化后重新排位
func (q *orderQueue) reposition(o *model.Order) {
	if q.remove(o.ID) {
		q.push(o)
	}
}

func (q *orderQueue) len() int { return len(q.items) }

func (q *orderQueue) snapshot() []*model.Order {
	return append([]*model.Order(nil), q.items...)
}
