package testseries

import (
	"fmt"
	"sort"
	"strings"

	"qbank/internal/question"
)

// resolveDistribution validates the raw label map and turns it into per
// difficulty counts for a test of total questions. Missing labels count as 0.
func resolveDistribution(raw map[string]int, mode DistributionMode, total int) (Distribution, error) {
	var limit int
	switch mode {
	case "", ModeCount:
		limit = total
	case ModePercent:
		limit = 100
	default:
		return nil, invalid("distribution_mode", "must be count or percent")
	}

	// Each level is capped at limit as it accumulates, so the sums below
	// cannot overflow.
	values := make(Distribution, len(question.Difficulties))
	for label, v := range raw {
		d, ok := question.ParseDifficulty(label)
		if !ok {
			return nil, invalid("difficulty_distribution", fmt.Sprintf("unknown difficulty %q", strings.TrimSpace(label)))
		}
		if v < 0 {
			return nil, invalid("difficulty_distribution", fmt.Sprintf("%s must not be negative", d))
		}
		if v > limit || values[d] > limit-v {
			return nil, invalid("difficulty_distribution", fmt.Sprintf("%s must not exceed %d", d, limit))
		}
		values[d] += v
	}

	switch mode {
	case ModePercent:
		if values.Sum() > 100 {
			return nil, invalid("difficulty_distribution", "percentages must not add up to more than 100")
		}
		return percentToCounts(values, total), nil
	default:
		return values, nil
	}
}

// percentToCounts applies the largest remainder method: every level gets the
// floor of its share, then leftover slots go to the largest fractional parts,
// ties broken in canonical difficulty order.
func percentToCounts(pct Distribution, total int) Distribution {
	type share struct {
		d         question.Difficulty
		rank      int
		remainder int
	}

	out := make(Distribution, len(question.Difficulties))
	shares := make([]share, 0, len(question.Difficulties))
	assigned := 0
	for i, d := range question.Difficulties {
		scaled := pct[d] * total
		out[d] = scaled / 100
		assigned += out[d]
		shares = append(shares, share{d: d, rank: i, remainder: scaled % 100})
	}

	target := pct.Sum() * total / 100
	sort.SliceStable(shares, func(i, j int) bool {
		if shares[i].remainder != shares[j].remainder {
			return shares[i].remainder > shares[j].remainder
		}
		return shares[i].rank < shares[j].rank
	})
	for i := 0; assigned < target && i < len(shares); i++ {
		if shares[i].remainder == 0 {
			break
		}
		out[shares[i].d]++
		assigned++
	}
	return out
}
