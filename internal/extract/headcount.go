package extract

import (
	"regexp"
	"strconv"
)

// Patterns that state a headcount. The capture group is the count; for
// ranges the upper bound is taken.
var headcountRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(\d{1,5})\+?\s+(?:employees|technicians|team members|staff members)\b`),
	regexp.MustCompile(`(?i)\bteam of\s+(?:over\s+)?(\d{1,5})\b`),
	regexp.MustCompile(`(?i)\bstaff of\s+(\d{1,5})\b`),
	regexp.MustCompile(`(?i)\bemploys?\s+(?:over\s+|more than\s+)?(\d{1,5})\b`),
	regexp.MustCompile(`(?i)\bover\s+(\d{1,5})\s+(?:employees|technicians|professionals|staff)\b`),
	regexp.MustCompile(`(?i)\b\d{1,5}\s*[-–]\s*(\d{1,5})\s+employees\b`),
}

const (
	minHeadcount = 2
	maxHeadcount = 10000
)

// extractHeadcount collects every headcount claim across all pages and
// returns the most frequently stated value. Ties go to the larger
// number; sites understate old copy more often than they inflate it.
func extractHeadcount(pages []page) int {
	counts := map[int]int{}
	for _, p := range pages {
		for _, re := range headcountRes {
			for _, m := range re.FindAllStringSubmatch(p.text, -1) {
				n, err := strconv.Atoi(m[1])
				if err != nil || n < minHeadcount || n > maxHeadcount {
					continue
				}
				counts[n]++
			}
		}
	}

	best, bestFreq := 0, 0
	for n, freq := range counts {
		if freq > bestFreq || (freq == bestFreq && n > best) {
			best, bestFreq = n, freq
		}
	}
	return best
}
