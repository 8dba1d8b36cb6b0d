package bot

import (
	"testing"

	"github.com/freeeve/squire/internal/model"
)

func challengeWith(id string, rating int, rated bool) *model.Challenge {
	return &model.Challenge{
		ID:         id,
		Rated:      rated,
		Challenger: model.Player{Name: id, Rating: rating},
	}
}

func popAll(q *challengeQueue) []string {
	var ids []string
	for c := q.Pop(); c != nil; c = q.Pop() {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestChallengeQueueBestOrdersByScore(t *testing.T) {
	q := newChallengeQueue("best")
	q.Push(challengeWith("weak", 1200, false))
	q.Push(challengeWith("strong", 2400, false))
	q.Push(challengeWith("mid", 1800, false))

	got := popAll(q)
	want := []string{"strong", "mid", "weak"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order %v, want %v", got, want)
		}
	}
}

func TestChallengeQueueRatedOutranksCasual(t *testing.T) {
	q := newChallengeQueue("best")
	q.Push(challengeWith("casual", 1500, false))
	q.Push(challengeWith("rated", 1500, true))

	if c := q.Pop(); c.ID != "rated" {
		t.Fatalf("popped %s, want rated first", c.ID)
	}
}

func TestChallengeQueueFirstKeepsArrivalOrder(t *testing.T) {
	q := newChallengeQueue("first")
	q.Push(challengeWith("early", 1200, false))
	q.Push(challengeWith("late", 2400, false))

	got := popAll(q)
	if got[0] != "early" || got[1] != "late" {
		t.Fatalf("pop order %v, want arrival order", got)
	}
}

func TestChallengeQueueStableForEqualScores(t *testing.T) {
	q := newChallengeQueue("best")
	q.Push(challengeWith("first", 1500, false))
	q.Push(challengeWith("second", 1500, false))
	q.Push(challengeWith("third", 1500, false))

	got := popAll(q)
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order %v, want %v", got, want)
		}
	}
}

func TestChallengeQueuePopEmpty(t *testing.T) {
	q := newChallengeQueue("best")
	if c := q.Pop(); c != nil {
		t.Fatalf("expected nil from empty queue, got %v", c)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, len %d", q.Len())
	}
}
