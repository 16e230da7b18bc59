package results

import (
	"math"
	"math/rand"
	"sort"
)

// SamplingMethod selects how a large result set is reduced.
type SamplingMethod string

const (
	SamplingNone       SamplingMethod = "none"
	SamplingRandom     SamplingMethod = "random"
	SamplingSystematic SamplingMethod = "systematic"
	SamplingStratified SamplingMethod = "stratified"
	SamplingTopN       SamplingMethod = "top_n"
)

// ValidSamplingMethod reports whether m is one of the supported methods.
func ValidSamplingMethod(m SamplingMethod) bool {
	switch m {
	case SamplingNone, SamplingRandom, SamplingSystematic, SamplingStratified, SamplingTopN:
		return true
	}
	return false
}

const (
	zScore95       = 1.96
	marginOfError  = 0.05
	proportionHalf = 0.5 // worst-case variance
)

// RequiredSampleSize computes the statistically sufficient sample size for
// a population of n with 95% confidence and 5% margin, with finite
// population correction.
func RequiredSampleSize(population int) int {
	if population <= 0 {
		return 0
	}
	base := zScore95 * zScore95 * proportionHalf * (1 - proportionHalf) / (marginOfError * marginOfError)
	corrected := base / (1 + (base-1)/float64(population))
	size := int(math.Ceil(corrected))
	if size > population {
		size = population
	}
	return size
}

// Sample reduces rows to at most min(requested, required) entries using
// the given method. Rows are never duplicated; the input is not mutated.
func Sample(rows []map[string]any, method SamplingMethod, requested int, stratifyBy string, rng *rand.Rand) []map[string]any {
	if method == SamplingNone || requested <= 0 || len(rows) <= requested {
		return rows
	}

	size := requested
	if required := RequiredSampleSize(len(rows)); required < size {
		size = required
	}
	if size >= len(rows) {
		return rows
	}

	switch method {
	case SamplingTopN:
		return rows[:size]
	case SamplingSystematic:
		return systematicSample(rows, size, rng)
	case SamplingStratified:
		return stratifiedSample(rows, size, stratifyBy, rng)
	default:
		return randomSample(rows, size, rng)
	}
}

func randomSample(rows []map[string]any, size int, rng *rand.Rand) []map[string]any {
	picked := rng.Perm(len(rows))[:size]
	sort.Ints(picked)
	out := make([]map[string]any, 0, size)
	for _, i := range picked {
		out = append(out, rows[i])
	}
	return out
}

func systematicSample(rows []map[string]any, size int, rng *rand.Rand) []map[string]any {
	stride := len(rows) / size
	start := rng.Intn(stride)
	out := make([]map[string]any, 0, size)
	for i := start; i < len(rows) && len(out) < size; i += stride {
		out = append(out, rows[i])
	}
	return out
}

// stratifiedSample allocates proportionally across the distinct values of
// stratifyBy, then samples randomly within each stratum. Falls back to
// random sampling when the column is absent.
func stratifiedSample(rows []map[string]any, size int, stratifyBy string, rng *rand.Rand) []map[string]any {
	if stratifyBy == "" {
		stratifyBy = "platform_name"
	}

	strata := make(map[string][]int)
	var keys []string
	for i, row := range rows {
		val, ok := row[stratifyBy]
		if !ok {
			return randomSample(rows, size, rng)
		}
		key := toString(val)
		if _, seen := strata[key]; !seen {
			keys = append(keys, key)
		}
		strata[key] = append(strata[key], i)
	}
	sort.Strings(keys)

	var picked []int
	for _, key := range keys {
		members := strata[key]
		quota := int(math.Round(float64(size) * float64(len(members)) / float64(len(rows))))
		if quota < 1 {
			quota = 1
		}
		if quota > len(members) {
			quota = len(members)
		}
		for _, j := range rng.Perm(len(members))[:quota] {
			picked = append(picked, members[j])
		}
	}

	sort.Ints(picked)
	if len(picked) > size {
		picked = picked[:size]
	}
	out := make([]map[string]any, 0, len(picked))
	for _, i := range picked {
		out = append(out, rows[i])
	}
	return out
}
