// Package pricing resolves which registration lot of an event applies on a given day.
// Every function is pure: the reference day is always an argument.
package pricing

import (
	"sort"
	"time"

	"youthexchange/internal/domain"
)

type upcomingLot struct {
	idx   int
	start time.Time
}

// Day truncates t to its calendar date in t's own location, expressed as UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, bool) {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// CurrentLot returns the first lot, in list order, whose inclusive [StartDate, EndDate] range
// contains today. Lots with a missing or malformed date never match.
func CurrentLot(lots []domain.Lot, today time.Time) *domain.Lot {
	day := Day(today)
	for i := range lots {
		start, ok := ParseDay(lots[i].StartDate)
		if !ok {
			continue
		}
		end, ok := ParseDay(lots[i].EndDate)
		if !ok {
			continue
		}
		if !day.Before(start) && !day.After(end) {
			lot := lots[i]
			return &lot
		}
	}
	return nil
}

// NextLot returns the lot with the smallest StartDate strictly after today. Equal start dates
// keep list order. Lots with a malformed StartDate are ignored.
func NextLot(lots []domain.Lot, today time.Time) *domain.Lot {
	day := Day(today)
	var upcoming []upcomingLot
	for i := range lots {
		start, ok := ParseDay(lots[i].StartDate)
		if !ok || !start.After(day) {
			continue
		}
		upcoming = append(upcoming, upcomingLot{idx: i, start: start})
	}
	if len(upcoming) == 0 {
		return nil
	}
	sort.SliceStable(upcoming, func(a, b int) bool {
		return upcoming[a].start.Before(upcoming[b].start)
	})
	lot := lots[upcoming[0].idx]
	return &lot
}

// Resolve reports the pricing state on today. An event with no lots is "not configured", which
// callers must tell apart from "configured but nothing active". Next is only looked up when no
// lot is current.
func Resolve(lots []domain.Lot, today time.Time) domain.PricingState {
	if len(lots) == 0 {
		return domain.PricingState{}
	}
	state := domain.PricingState{Configured: true}
	state.Current = CurrentLot(lots, today)
	if state.Current == nil {
		state.Next = NextLot(lots, today)
	}
	return state
}
