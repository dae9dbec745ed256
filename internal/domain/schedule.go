package domain

import (
	"time"

	"github.com/kevin07696/billing-service/pkg/timeutil"
)

// ComputeNextRenewal returns now + base period + extension.
// The base is the trial period when one is configured, otherwise the
// plan's renewal period. The extension is counted in the trial interval.
func ComputeNextRenewal(now time.Time, plan *Plan, trialExtension int) time.Time {
	unit := plan.TrialInterval.OrDefault()

	var next time.Time
	if plan.HasTrial() {
		next = unit.Advance(now, *plan.TrialPeriod)
	} else {
		period, renewalUnit := plan.RenewalTerm()
		next = renewalUnit.Advance(now, period)
	}

	if trialExtension > 0 {
		next = unit.Advance(next, trialExtension)
	}
	return timeutil.ToUTC(next)
}

// AdvanceRenewal moves from by one renewal term of sub
func AdvanceRenewal(from time.Time, sub *Subscription) time.Time {
	period, unit := sub.RenewalTerm()
	return unit.Advance(from, period)
}

// ExpiringTrialWindow is the UTC day exactly seven days after now
func ExpiringTrialWindow(now time.Time) (time.Time, time.Time) {
	return timeutil.DayWindow(now.AddDate(0, 0, 7))
}

// DueWindow is the UTC day containing asOf
func DueWindow(asOf time.Time) (time.Time, time.Time) {
	return timeutil.DayWindow(asOf)
}
