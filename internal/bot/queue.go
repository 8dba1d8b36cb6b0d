package bot

import (
	"sort"

	"github.com/freeeve/squire/internal/model"
)

// challengeQueue holds challenges accepted for admission but not yet granted
// a game slot. Ordering is either by descending score ("best") or plain
// arrival order ("first"); both are stable for equal scores.
type challengeQueue struct {
	byScore bool
	items   []*model.Challenge
}

func newChallengeQueue(sortBy string) *challengeQueue {
	return &challengeQueue{byScore: sortBy != "first"}
}

func (q *challengeQueue) Push(c *model.Challenge) {
	q.items = append(q.items, c)
	if q.byScore {
		sort.SliceStable(q.items, func(i, j int) bool {
			return q.items[i].Score() > q.items[j].Score()
		})
	}
}

// Pop removes and returns the head of the queue, or nil when empty.
func (q *challengeQueue) Pop() *model.Challenge {
	if len(q.items) == 0 {
		return nil
	}
	c := q.items[0]
	q.items = q.items[1:]
	return c
}

func (q *challengeQueue) Len() int { return len(q.items) }
