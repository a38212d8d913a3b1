package stats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hsltracker-data/pkg/transport"
)

// Stat categories persisted in transport_stats.
const (
	CategoryHourly = "hourly"
	CategoryType   = "type"
)

// hourBucket truncates a timestamp to its hour in UTC.
func hourBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// dayBucket truncates a timestamp to midnight UTC.
func dayBucket(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// countModes tallies a batch of sightings per vehicle mode.
func countModes(vehicles []transport.Vehicle) map[string]int64 {
	counts := make(map[string]int64)
	for _, vehicle := range vehicles {
		counts[string(vehicle.Mode)]++
	}
	return counts
}

// mergeModeDetails adds per-mode counts into an hourly bucket's details
// blob, creating the modes sub-map and missing keys as needed.
func mergeModeDetails(existing []byte, add map[string]int64) ([]byte, error) {
	details := map[string]interface{}{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &details); err != nil {
			return nil, fmt.Errorf("decoding details: %w", err)
		}
	}

	modes := map[string]int64{}
	if raw, ok := details["modes"].(map[string]interface{}); ok {
		for mode, value := range raw {
			modes[mode] = toInt64(value)
		}
	}
	for mode, count := range add {
		modes[mode] += count
	}
	details["modes"] = modes

	merged, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encoding details: %w", err)
	}
	return merged, nil
}

// sumDaily collapses hourly buckets into per-calendar-day totals, summing
// mode sub-counts across the hours of each day. There is no separate daily
// storage path.
func sumDaily(hourly []transport.StatCount) []transport.StatCount {
	var (
		days  []transport.StatCount
		index = make(map[string]int)
	)

	for _, bucket := range hourly {
		day := dayBucket(bucket.Timestamp)
		key := day.Format("2006-01-02")

		i, ok := index[key]
		if !ok {
			i = len(days)
			index[key] = i
			days = append(days, transport.StatCount{
				Timestamp: day,
				Category:  "day-" + key,
				Details:   map[string]interface{}{"modes": map[string]int64{}},
			})
		}

		days[i].Count += bucket.Count

		modes := days[i].Details["modes"].(map[string]int64)
		if raw, ok := bucket.Details["modes"].(map[string]interface{}); ok {
			for mode, value := range raw {
				modes[mode] += toInt64(value)
			}
		}
	}

	return days
}

// toInt64 normalizes JSON-decoded numbers.
func toInt64(value interface{}) int64 {
	switch v := value.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		parsed, _ := v.Int64()
		return parsed
	}
	return 0
}
