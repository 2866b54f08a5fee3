package features

import "math"

// shannonEntropy computes base-2 Shannon entropy over a frequency
// distribution. Empty or single-symbol distributions yield 0.
func shannonEntropy[K comparable](counts map[K]int) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}

	entropy := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// stringEntropy computes character-level Shannon entropy of a string.
func stringEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int, len(s))
	for _, r := range s {
		counts[r]++
	}
	return shannonEntropy(counts)
}
