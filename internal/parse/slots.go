package parse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	slotRangeRe = regexp.MustCompile(`(\d{1,2})(?::\d{2})?\s*시?\s*~\s*(\d{1,2})(?::\d{2})?\s*시?`)
	slotHourRe  = regexp.MustCompile(`(\d{1,2})(?::\d{2})?\s*시?`)
)

// TimeSlots normalizes the portal's hour-range text ("10:00~12:00",
// "10시~12시, 14:00") into an ordered sequence of covered hour markers.
// A range covers [start, end); a bare hour covers itself.
func TimeSlots(raw string) []int {
	seen := make(map[int]bool)
	for _, segment := range strings.Split(raw, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		if m := slotRangeRe.FindStringSubmatch(segment); m != nil {
			start, err1 := strconv.Atoi(m[1])
			end, err2 := strconv.Atoi(m[2])
			if err1 != nil || err2 != nil || start >= end {
				continue
			}
			for h := start; h < end; h++ {
				seen[h] = true
			}
			continue
		}
		if m := slotHourRe.FindStringSubmatch(segment); m != nil {
			if h, err := strconv.Atoi(m[1]); err == nil {
				seen[h] = true
			}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	slots := make([]int, 0, len(seen))
	for h := range seen {
		slots = append(slots, h)
	}
	sort.Ints(slots)
	return slots
}
