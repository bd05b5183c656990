package analyzer

import (
	"sort"
	"time"

	"github.com/scrypster/bizdna/pkg/types"
)

// timing buckets timestamped records by weekday and by (weekday, hour).
// Timestamps are read in UTC. With fewer than MinTimedRecords timestamped
// records both results are empty.
func (a *Analyzer) timing(records []types.InteractionRecord) ([]string, []types.ContactTime) {
	var byDay [7]int
	bySlot := make(map[[2]int]int)
	timed := 0

	for _, r := range records {
		if r.PublishedAt == nil || r.PublishedAt.IsZero() {
			continue
		}
		ts := r.PublishedAt.UTC()
		day := int(ts.Weekday())
		byDay[day]++
		bySlot[[2]int{day, ts.Hour()}]++
		timed++
	}

	if timed < a.tun.MinTimedRecords {
		return []string{}, []types.ContactTime{}
	}

	days := make([]int, 0, 7)
	for d := 0; d < 7; d++ {
		if byDay[d] > 0 {
			days = append(days, d)
		}
	}
	sort.SliceStable(days, func(i, j int) bool {
		return byDay[days[i]] > byDay[days[j]]
	})
	peak := make([]string, 0, a.tun.MaxPeakDays)
	for _, d := range days {
		if len(peak) == a.tun.MaxPeakDays {
			break
		}
		peak = append(peak, time.Weekday(d).String())
	}

	slots := make([][2]int, 0, len(bySlot))
	for s := range bySlot {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool {
		ci, cj := bySlot[slots[i]], bySlot[slots[j]]
		if ci != cj {
			return ci > cj
		}
		if slots[i][0] != slots[j][0] {
			return slots[i][0] < slots[j][0]
		}
		return slots[i][1] < slots[j][1]
	})
	best := make([]types.ContactTime, 0, a.tun.MaxBestTimes)
	for _, s := range slots {
		if len(best) == a.tun.MaxBestTimes {
			break
		}
		best = append(best, types.ContactTime{Day: time.Weekday(s[0]).String(), Hour: s[1]})
	}

	return peak, best
}
