package recurrence

import (
	"fmt"
	"slices"
	"time"

	"github.com/teambition/rrule-go"
)

var rruleWeekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// ROption converts the rule into rrule-go options anchored at dtstart.
//
// Monthly rules past the 28th are written as BYMONTHDAY=28..N;BYSETPOS=-1 so
// that short months clamp to their last day instead of being skipped.
func (r Rule) ROption(dtstart time.Time) (rrule.ROption, error) {
	if err := r.Validate(); err != nil {
		return rrule.ROption{}, err
	}

	opt := rrule.ROption{
		Dtstart:  dtstart,
		Interval: r.Interval,
		Count:    r.Count,
		Wkst:     rrule.SU,
	}
	if r.Until != nil {
		opt.Until = *r.Until
	}

	switch r.Frequency {
	case FrequencyDaily:
		opt.Freq = rrule.DAILY
	case FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
		days := r.DaysOfWeek
		if days == nil {
			days = []time.Weekday{dtstart.Weekday()}
		}
		for _, day := range sortedWeekdays(days) {
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[day])
		}
	case FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
		day := r.DayOfMonth
		if day == 0 {
			day = dtstart.Day()
		}
		if day <= 28 {
			opt.Bymonthday = []int{day}
		} else {
			for d := 28; d <= day; d++ {
				opt.Bymonthday = append(opt.Bymonthday, d)
			}
			opt.Bysetpos = []int{-1}
		}
	default:
		return rrule.ROption{}, &RuleError{Field: "frequency", Reason: "has no RRULE form"}
	}

	return opt, nil
}

// RRule renders the rule as an RFC 5545 RRULE value without DTSTART.
func (r Rule) RRule(dtstart time.Time) (string, error) {
	opt, err := r.ROption(dtstart)
	if err != nil {
		return "", err
	}
	return opt.RRuleString(), nil
}

// RuleFromRRule parses an RFC 5545 RRULE value produced by RRule.
func RuleFromRRule(value string) (Rule, error) {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return Rule{}, fmt.Errorf("recurrence: parse rrule: %w", err)
	}

	rule := Rule{
		Interval: opt.Interval,
		Count:    opt.Count,
	}
	if rule.Interval == 0 {
		rule.Interval = 1
	}
	if !opt.Until.IsZero() {
		until := opt.Until
		rule.Until = &until
	}

	switch opt.Freq {
	case rrule.DAILY:
		rule.Frequency = FrequencyDaily
	case rrule.WEEKLY:
		rule.Frequency = FrequencyWeekly
		for _, day := range opt.Byweekday {
			rule.DaysOfWeek = append(rule.DaysOfWeek, time.Weekday((day.Day()+1)%7))
		}
		if rule.DaysOfWeek != nil {
			rule.DaysOfWeek = sortedWeekdays(rule.DaysOfWeek)
		}
	case rrule.MONTHLY:
		rule.Frequency = FrequencyMonthly
		if len(opt.Bymonthday) > 0 {
			rule.DayOfMonth = slices.Max(opt.Bymonthday)
		}
	default:
		return Rule{}, &RuleError{Field: "frequency", Reason: "is not supported"}
	}

	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}
