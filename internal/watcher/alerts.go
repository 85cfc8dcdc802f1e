package watcher

import (
	"fmt"
	"sort"
	"time"
)

// Compare detects notable changes between two watch states and returns alerts.
// It checks for critical, warning, and info-level changes.
func Compare(prev, curr *WatchState) []Alert {
	var alerts []Alert

	alerts = append(alerts, compareCritical(prev, curr)...)
	alerts = append(alerts, compareWarning(prev, curr)...)
	alerts = append(alerts, compareInfo(prev, curr)...)

	return alerts
}

// compareCritical reports failed calculation runs. The watermark of a failed
// job does not move, so its dashboards go stale until the failure clears.
func compareCritical(_, curr *WatchState) []Alert {
	var alerts []Alert
	for _, job := range sortedKeys(curr.Failures) {
		alerts = append(alerts, Alert{
			Level:   "critical",
			Title:   fmt.Sprintf("Calculation failed: %s", job),
			Job:     job,
			Message: curr.Failures[job],
			Time:    curr.Timestamp,
		})
	}
	return alerts
}

// compareWarning detects stuck leases and growing lead backlogs.
func compareWarning(prev, curr *WatchState) []Alert {
	var alerts []Alert

	for _, job := range sortedKeys(curr.Skipped) {
		if prev.Skipped[job] {
			alerts = append(alerts, Alert{
				Level:   "warning",
				Title:   fmt.Sprintf("Lease held: %s", job),
				Job:     job,
				Message: "Another run has held the watermark lease for two consecutive checks",
				Time:    curr.Timestamp,
			})
		}
	}

	if curr.HotLeads > prev.HotLeads {
		alerts = append(alerts, Alert{
			Level:   "warning",
			Title:   "Hot leads waiting",
			Message: fmt.Sprintf("%s without a booking, forecast to convert on a callback (was %d)", describe(curr.HotLeads), prev.HotLeads),
			Time:    curr.Timestamp,
		})
	}

	if curr.LeadsErr != "" {
		alerts = append(alerts, Alert{
			Level:   "warning",
			Title:   "Lead query failed",
			Message: curr.LeadsErr,
			Time:    curr.Timestamp,
		})
	}

	return alerts
}

// compareInfo reports recoveries and scored volume.
func compareInfo(prev, curr *WatchState) []Alert {
	var alerts []Alert

	for _, job := range sortedKeys(prev.Failures) {
		if _, still := curr.Failures[job]; still {
			continue
		}
		if _, ran := curr.Processed[job]; !ran {
			continue
		}
		alerts = append(alerts, Alert{
			Level:   "info",
			Title:   fmt.Sprintf("Calculation recovered: %s", job),
			Job:     job,
			Message: fmt.Sprintf("Scored %s after the previous failure", describe(curr.Processed[job])),
			Time:    curr.Timestamp,
		})
	}

	for _, job := range sortedKeys(curr.Processed) {
		n := curr.Processed[job]
		if n == 0 || prev.Failures[job] != "" {
			continue
		}
		alerts = append(alerts, Alert{
			Level:   "info",
			Title:   fmt.Sprintf("Scored: %s", job),
			Job:     job,
			Message: fmt.Sprintf("%s scored", describe(n)),
			Time:    curr.Timestamp,
		})
	}

	return alerts
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// alertTime keeps zero timestamps out of notifications.
func alertTime(a Alert) time.Time {
	if a.Time.IsZero() {
		return time.Now()
	}
	return a.Time
}
