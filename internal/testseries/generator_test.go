package testseries

import (
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"qbank/internal/question"
)

func makePool(counts map[question.Difficulty]int) []question.Question {
	pool := make([]question.Question, 0)
	id := int64(1)
	for _, d := range question.Difficulties {
		for i := 0; i < counts[d]; i++ {
			pool = append(pool, question.Question{
				ID:           id,
				Subject:      "Math",
				AcademicYear: "2024",
				Difficulty:   d,
				Prompt:       question.PlainPrompt("q"),
				Options:      []string{"a", "b"},
				IsActive:     true,
			})
			id++
		}
	}
	return pool
}

func countByDifficulty(items []question.Question) map[question.Difficulty]int {
	out := map[question.Difficulty]int{}
	for _, q := range items {
		out[q.Difficulty]++
	}
	return out
}

func assertDistinct(t *testing.T, items []question.Question) {
	t.Helper()
	seen := map[int64]struct{}{}
	for _, q := range items {
		if _, dup := seen[q.ID]; dup {
			t.Fatalf("question %d selected twice", q.ID)
		}
		seen[q.ID] = struct{}{}
	}
}

func TestSelectHonoursDistribution(t *testing.T) {
	pool := makePool(map[question.Difficulty]int{
		question.Beginner: 8, question.Intermediate: 12, question.Advanced: 7, question.Expert: 4,
	})
	dist := Distribution{question.Beginner: 5, question.Intermediate: 10, question.Advanced: 5, question.Expert: 0}

	for seed := uint64(1); seed <= 25; seed++ {
		g := NewGenerator(rand.NewPCG(seed, seed*7))
		got, err := g.Select(pool, 20, dist)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if len(got) != 20 {
			t.Fatalf("seed %d: expected 20, got %d", seed, len(got))
		}
		assertDistinct(t, got)
		c := countByDifficulty(got)
		if c[question.Beginner] != 5 || c[question.Intermediate] != 10 || c[question.Advanced] != 5 || c[question.Expert] != 0 {
			t.Fatalf("seed %d: unexpected counts %+v", seed, c)
		}
	}
}

func TestSelectFillsShortBuckets(t *testing.T) {
	pool := makePool(map[question.Difficulty]int{question.Beginner: 2, question.Intermediate: 10})
	g := NewGenerator(rand.NewPCG(3, 4))

	got, err := g.Select(pool, 8, Distribution{question.Beginner: 5})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 8 {
		t.Fatalf("expected 8, got %d", len(got))
	}
	assertDistinct(t, got)
	if c := countByDifficulty(got); c[question.Beginner] != 2 {
		t.Fatalf("expected both beginner questions, got %+v", c)
	}
}

func TestSelectCapsAtTotal(t *testing.T) {
	pool := makePool(map[question.Difficulty]int{question.Beginner: 10, question.Expert: 10})
	g := NewGenerator(rand.NewPCG(5, 6))

	got, err := g.Select(pool, 6, Distribution{question.Beginner: 5, question.Expert: 5})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	c := countByDifficulty(got)
	if len(got) != 6 || c[question.Beginner] != 5 || c[question.Expert] != 1 {
		t.Fatalf("expected 5 beginner then 1 expert, got %+v", c)
	}
}

func TestSelectEmptyDistributionSamplesUniformly(t *testing.T) {
	pool := makePool(map[question.Difficulty]int{question.Advanced: 30})
	g := NewGenerator(rand.NewPCG(9, 9))

	got, err := g.Select(pool, 30, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 30 {
		t.Fatalf("expected the whole pool, got %d", len(got))
	}
	assertDistinct(t, got)
}

func TestSelectSkipsInactiveAndDuplicates(t *testing.T) {
	pool := makePool(map[question.Difficulty]int{question.Beginner: 3})
	pool[0].IsActive = false
	pool = append(pool, pool[1])
	g := NewGenerator(rand.NewPCG(1, 2))

	_, err := g.Select(pool, 3, nil)
	var shortErr *InsufficientQuestionsError
	if !errors.As(err, &shortErr) {
		t.Fatalf("expected InsufficientQuestionsError, got %v", err)
	}
	if shortErr.Available != 2 || shortErr.Requested != 3 {
		t.Fatalf("unexpected counts %+v", shortErr)
	}
	if !errors.Is(err, ErrInsufficientQuestions) {
		t.Fatalf("error must match ErrInsufficientQuestions")
	}
}

func TestSelectIsRandom(t *testing.T) {
	pool := makePool(map[question.Difficulty]int{question.Beginner: 50})
	g := NewGenerator(rand.NewPCG(11, 12))

	first, _ := g.Select(pool, 10, Distribution{question.Beginner: 10})
	differs := false
	for i := 0; i < 10 && !differs; i++ {
		next, _ := g.Select(pool, 10, Distribution{question.Beginner: 10})
		for j := range next {
			if next[j].ID != first[j].ID {
				differs = true
				break
			}
		}
	}
	if !differs {
		t.Fatalf("expected repeated selections to differ")
	}
}

func TestSelectConcurrentUse(t *testing.T) {
	pool := makePool(map[question.Difficulty]int{question.Beginner: 20, question.Expert: 20})
	g := NewGenerator(nil)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := g.Select(pool, 15, Distribution{question.Beginner: 5, question.Expert: 5})
			if err == nil && len(got) != 15 {
				err = errors.New("wrong size")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent select: %v", err)
		}
	}
}
