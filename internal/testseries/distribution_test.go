package testseries

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"qbank/internal/question"
)

func TestResolveDistributionCount(t *testing.T) {
	got, err := resolveDistribution(map[string]int{"beginner": 5, "ADVANCED": 2}, ModeCount, 20)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got[question.Beginner] != 5 || got[question.Advanced] != 2 || got[question.Expert] != 0 {
		t.Fatalf("unexpected distribution %+v", got)
	}
}

func TestResolveDistributionErrors(t *testing.T) {
	tests := []struct {
		name  string
		raw   map[string]int
		mode  DistributionMode
		field string
	}{
		{name: "unknown label", raw: map[string]int{"Hard": 1}, field: "difficulty_distribution"},
		{name: "negative", raw: map[string]int{"Beginner": -1}, field: "difficulty_distribution"},
		{name: "percent over 100", raw: map[string]int{"Beginner": 60, "Expert": 50}, mode: ModePercent, field: "difficulty_distribution"},
		{name: "bad mode", raw: map[string]int{"Beginner": 1}, mode: "ratio", field: "distribution_mode"},
		{name: "percent overflow", raw: map[string]int{"Beginner": math.MaxInt, "Intermediate": 1}, mode: ModePercent, field: "difficulty_distribution"},
		{name: "percent single over 100", raw: map[string]int{"Expert": 101}, mode: ModePercent, field: "difficulty_distribution"},
		{name: "percent duplicate labels", raw: map[string]int{"beginner": 60, "Beginner": 60}, mode: ModePercent, field: "difficulty_distribution"},
		{name: "count over total", raw: map[string]int{"Beginner": 11}, field: "difficulty_distribution"},
		{name: "count overflow", raw: map[string]int{"Beginner": math.MaxInt, "Advanced": math.MaxInt}, field: "difficulty_distribution"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolveDistribution(tc.raw, tc.mode, 10)
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected validation error on %s, got %v", tc.field, err)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("validation error must match ErrInvalidInput")
			}
		})
	}
}

func TestPercentToCountsSumsToTotal(t *testing.T) {
	tests := []struct {
		pct   Distribution
		total int
		want  Distribution
	}{
		{
			pct:   Distribution{question.Beginner: 25, question.Intermediate: 50, question.Advanced: 25},
			total: 20,
			want:  Distribution{question.Beginner: 5, question.Intermediate: 10, question.Advanced: 5, question.Expert: 0},
		},
		{
			pct:   Distribution{question.Beginner: 33, question.Intermediate: 33, question.Advanced: 34},
			total: 10,
			want:  Distribution{question.Beginner: 3, question.Intermediate: 3, question.Advanced: 4, question.Expert: 0},
		},
		{
			// equal remainders: canonical order wins
			pct:   Distribution{question.Beginner: 25, question.Intermediate: 25, question.Advanced: 25, question.Expert: 25},
			total: 6,
			want:  Distribution{question.Beginner: 2, question.Intermediate: 2, question.Advanced: 1, question.Expert: 1},
		},
	}
	for _, tc := range tests {
		got := percentToCounts(tc.pct, tc.total)
		for _, d := range question.Difficulties {
			if got[d] != tc.want[d] {
				t.Fatalf("percentToCounts(%v, %d) = %v, want %v", tc.pct, tc.total, got, tc.want)
			}
		}
		if got.Sum() != tc.total {
			t.Fatalf("sum %d != total %d", got.Sum(), tc.total)
		}
	}
}

func TestPercentUnder100LeavesRoomForFill(t *testing.T) {
	got := percentToCounts(Distribution{question.Beginner: 50}, 9)
	if got[question.Beginner] != 4 || got.Sum() != 4 {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestTopicFilterJSON(t *testing.T) {
	tests := []struct {
		raw        string
		restricted bool
		topics     []string
		out        string
	}{
		{raw: `"all"`, out: `"all"`},
		{raw: `"ALL"`, out: `"all"`},
		{raw: `null`, out: `"all"`},
		{raw: `[]`, out: `"all"`},
		{raw: `["Calculus"," Algebra ","Calculus"]`, restricted: true, topics: []string{"Calculus", "Algebra"}, out: `["Calculus","Algebra"]`},
	}
	for _, tc := range tests {
		var f TopicFilter
		if err := json.Unmarshal([]byte(tc.raw), &f); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.raw, err)
		}
		if f.Restricted() != tc.restricted {
			t.Fatalf("%s: restricted = %v", tc.raw, f.Restricted())
		}
		if tc.restricted && len(f.Topics) != len(tc.topics) {
			t.Fatalf("%s: topics = %v", tc.raw, f.Topics)
		}
		out, err := json.Marshal(f)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(out) != tc.out {
			t.Fatalf("%s: marshal = %s, want %s", tc.raw, out, tc.out)
		}
	}

	var f TopicFilter
	if err := json.Unmarshal([]byte(`42`), &f); err == nil {
		t.Fatalf("expected error for numeric topics")
	}
}

func TestGenerateRequestMissingTopicsMeansAll(t *testing.T) {
	var req GenerateRequest
	if err := json.Unmarshal([]byte(`{"subject":"Math","academic_year":"2024"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Topics.Restricted() {
		t.Fatalf("absent topics must not restrict the pool")
	}
}
