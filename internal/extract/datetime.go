// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout and TimeLayout are the normalized event date and time formats.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// Abbreviations that double as ordinary words (sat, sun, wed) are left out.
const weekdayPattern = `monday|tuesday|wednesday|thursday|friday|saturday|sunday|tues|tue|thurs|thu|fri`

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?\b`)
	monthDateRe = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	relativeRe  = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|next week)\b`)
	nextDayRe   = regexp.MustCompile(`(?i)\bnext\s+(` + weekdayPattern + `)\b`)
	weekdayRe   = regexp.MustCompile(`(?i)\b(` + weekdayPattern + `)\b`)

	clock12Re = regexp.MustCompile(`(?i)\b(\d{1,2})(?::([0-5]\d))?\s*([ap])\.?m\b\.?`)
	clock24Re = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	noonRe    = regexp.MustCompile(`(?i)\b(noon|midday|midnight)\b`)
)

type dateMatch struct {
	pos  int
	date time.Time
}

// findDate returns the earliest date phrase in text, resolved against ref.
// The result is midnight in ref's location.
func findDate(text string, ref time.Time) (time.Time, bool) {
	var best *dateMatch
	consider := func(pos int, d time.Time) {
		if best == nil || pos < best.pos {
			best = &dateMatch{pos: pos, date: d}
		}
	}

	day := truncateDay(ref)

	for _, m := range isoDateRe.FindAllStringSubmatchIndex(text, -1) {
		y, _ := strconv.Atoi(text[m[2]:m[3]])
		mo, _ := strconv.Atoi(text[m[4]:m[5]])
		d, _ := strconv.Atoi(text[m[6]:m[7]])
		if t, ok := makeDate(y, mo, d, ref.Location()); ok {
			consider(m[0], t)
		}
	}

	for _, m := range slashDateRe.FindAllStringSubmatchIndex(text, -1) {
		mo, _ := strconv.Atoi(text[m[2]:m[3]])
		d, _ := strconv.Atoi(text[m[4]:m[5]])
		y := ref.Year()
		explicitYear := m[6] >= 0
		if explicitYear {
			y, _ = strconv.Atoi(text[m[6]:m[7]])
			if y < 100 {
				y += 2000
			}
		}
		if t, ok := makeDate(y, mo, d, ref.Location()); ok {
			if !explicitYear && t.Before(day) {
				t = t.AddDate(1, 0, 0)
			}
			consider(m[0], t)
		}
	}

	for _, m := range monthDateRe.FindAllStringSubmatchIndex(text, -1) {
		mo := months[strings.ToLower(text[m[2]:m[3]])[:3]]
		d, _ := strconv.Atoi(text[m[4]:m[5]])
		y := ref.Year()
		explicitYear := m[6] >= 0
		if explicitYear {
			y, _ = strconv.Atoi(text[m[6]:m[7]])
		}
		if t, ok := makeDate(y, int(mo), d, ref.Location()); ok {
			if !explicitYear && t.Before(day) {
				t = t.AddDate(1, 0, 0)
			}
			consider(m[0], t)
		}
	}

	for _, m := range relativeRe.FindAllStringSubmatchIndex(text, -1) {
		switch strings.ToLower(text[m[2]:m[3]]) {
		case "today", "tonight":
			consider(m[0], day)
		case "tomorrow":
			consider(m[0], day.AddDate(0, 0, 1))
		case "next week":
			consider(m[0], day.AddDate(0, 0, 7))
		}
	}

	nextDays := nextDayRe.FindAllStringSubmatchIndex(text, -1)
	for _, m := range nextDays {
		wd := weekdays[strings.ToLower(text[m[2]:m[3]])]
		consider(m[0], nextWeekday(day, wd, true))
	}

	for _, m := range weekdayRe.FindAllStringSubmatchIndex(text, -1) {
		if insideAny(m[0], nextDays) {
			continue
		}
		wd := weekdays[strings.ToLower(text[m[2]:m[3]])]
		consider(m[0], nextWeekday(day, wd, false))
	}

	if best == nil {
		return time.Time{}, false
	}
	return best.date, true
}

// findTime returns the first clock time in text as 24-hour "HH:MM".
func findTime(text string) (string, bool) {
	if m := clock12Re.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h >= 1 && h <= 12 {
			mins := 0
			if m[2] != "" {
				mins, _ = strconv.Atoi(m[2])
			}
			pm := strings.EqualFold(m[3], "p")
			switch {
			case pm && h != 12:
				h += 12
			case !pm && h == 12:
				h = 0
			}
			return fmt.Sprintf("%02d:%02d", h, mins), true
		}
	}
	if m := clock24Re.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		return fmt.Sprintf("%02d:%02d", h, mins), true
	}
	if m := noonRe.FindStringSubmatch(text); m != nil {
		if strings.EqualFold(m[1], "midnight") {
			return "00:00", true
		}
		return "12:00", true
	}
	return "", false
}

// NormalizeDate accepts the date spellings models commonly return and
// produces YYYY-MM-DD.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{DateLayout, time.RFC3339, "2006/01/02", "01/02/2006", "January 2, 2006", "Jan 2, 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}

// NormalizeTime accepts "HH:MM", "H:MM PM", "2pm" and "noon" and produces
// 24-hour HH:MM.
func NormalizeTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t.Format(TimeLayout), nil
	}
	if t, err := time.Parse("15:04:05", s); err == nil {
		return t.Format(TimeLayout), nil
	}
	if hhmm, ok := findTime(s); ok {
		return hhmm, nil
	}
	return "", fmt.Errorf("unrecognized time %q", s)
}

func makeDate(y, m, d int, loc *time.Location) (time.Time, bool) {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
	// Reject overflow such as 2/30.
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// nextWeekday returns the next wd on or after day. With strict, a match on
// day itself moves a week ahead ("next Thursday" said on a Thursday).
func nextWeekday(day time.Time, wd time.Weekday, strict bool) time.Time {
	ahead := (int(wd) - int(day.Weekday()) + 7) % 7
	if ahead == 0 && strict {
		ahead = 7
	}
	return day.AddDate(0, 0, ahead)
}

func insideAny(pos int, spans [][]int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}

func dateString(t time.Time) *string {
	s := t.Format(DateLayout)
	return &s
}
