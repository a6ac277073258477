package testseries

import (
	"math/rand/v2"
	"sync"

	"qbank/internal/question"
)

// Generator picks question sets. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator builds a generator over src. A nil src seeds from the runtime.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{rng: rand.New(src)}
}

// Select draws exactly total distinct questions from pool. Each difficulty in
// canonical order contributes up to its count from a uniform shuffle of its
// bucket, capped by the slots still open. Whatever is left is filled by
// uniform sampling without replacement from the unused questions.
func (g *Generator) Select(pool []question.Question, total int, dist Distribution) ([]question.Question, error) {
	unique := make([]question.Question, 0, len(pool))
	seen := make(map[int64]struct{}, len(pool))
	for _, q := range pool {
		if !q.IsActive {
			continue
		}
		if _, dup := seen[q.ID]; dup {
			continue
		}
		seen[q.ID] = struct{}{}
		unique = append(unique, q)
	}
	if len(unique) < total {
		return nil, &InsufficientQuestionsError{Available: len(unique), Requested: total}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	selected := make([]question.Question, 0, total)
	used := make(map[int64]struct{}, total)
	for _, d := range question.Difficulties {
		want := dist[d]
		remaining := total - len(selected)
		if want <= 0 || remaining <= 0 {
			continue
		}

		bucket := make([]question.Question, 0)
		for _, q := range unique {
			if q.Difficulty == d {
				bucket = append(bucket, q)
			}
		}
		g.shuffle(bucket)

		n := min(want, remaining, len(bucket))
		for _, q := range bucket[:n] {
			selected = append(selected, q)
			used[q.ID] = struct{}{}
		}
	}

	if need := total - len(selected); need > 0 {
		rest := make([]question.Question, 0, len(unique)-len(selected))
		for _, q := range unique {
			if _, ok := used[q.ID]; !ok {
				rest = append(rest, q)
			}
		}
		if len(rest) < need {
			return nil, &InsufficientQuestionsError{Available: len(unique), Requested: total}
		}
		g.shuffle(rest)
		selected = append(selected, rest[:need]...)
	}
	return selected, nil
}

// shuffle is Fisher-Yates over the shared source; callers hold g.mu.
func (g *Generator) shuffle(items []question.Question) {
	for i := len(items) - 1; i > 0; i-- {
		j := g.rng.IntN(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}
