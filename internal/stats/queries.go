package stats

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hsltracker-data/pkg/transport"
)

// HourlyStats returns one entry per hourly bucket within the given day,
// ordered by timestamp ascending.
func (a *Aggregator) HourlyStats(ctx context.Context, date time.Time) ([]transport.StatCount, error) {
	start := dayBucket(date)
	end := start.Add(24 * time.Hour)

	buckets, err := a.hourlyRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	for i := range buckets {
		buckets[i].Category = fmt.Sprintf("hour-%d", buckets[i].Timestamp.Hour())
	}
	return buckets, nil
}

// DailyStats sums hourly buckets per calendar day across the inclusive
// date range.
func (a *Aggregator) DailyStats(ctx context.Context, startDate, endDate time.Time) ([]transport.StatCount, error) {
	start := dayBucket(startDate)
	end := dayBucket(endDate).Add(24 * time.Hour)

	hourly, err := a.hourlyRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	return sumDaily(hourly), nil
}

func (a *Aggregator) hourlyRange(ctx context.Context, start, end time.Time) ([]transport.StatCount, error) {
	rows, err := a.db.DB().QueryContext(ctx, `
		SELECT bucket_ts, count, details
		FROM transport_stats
		WHERE category = $1 AND bucket_ts >= $2 AND bucket_ts < $3
		ORDER BY bucket_ts
	`, CategoryHourly, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying hourly stats: %w", err)
	}
	defer rows.Close()

	var buckets []transport.StatCount
	for rows.Next() {
		var (
			bucket  transport.StatCount
			details []byte
		)
		if err := rows.Scan(&bucket.Timestamp, &bucket.Count, &details); err != nil {
			return nil, fmt.Errorf("scanning hourly bucket: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &bucket.Details); err != nil {
				return nil, fmt.Errorf("decoding bucket details: %w", err)
			}
		}
		buckets = append(buckets, bucket)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hourly buckets: %w", err)
	}

	return buckets, nil
}

// StatsByType returns today's per-mode counters.
func (a *Aggregator) StatsByType(ctx context.Context) ([]transport.StatCount, error) {
	today := dayBucket(time.Now().UTC())

	rows, err := a.db.DB().QueryContext(ctx, `
		SELECT bucket_ts, mode, count
		FROM transport_stats
		WHERE category = $1 AND bucket_ts >= $2
		ORDER BY mode
	`, CategoryType, today)
	if err != nil {
		return nil, fmt.Errorf("querying type stats: %w", err)
	}
	defer rows.Close()

	var counts []transport.StatCount
	for rows.Next() {
		var (
			bucket transport.StatCount
			mode   string
		)
		if err := rows.Scan(&bucket.Timestamp, &mode, &bucket.Count); err != nil {
			return nil, fmt.Errorf("scanning type counter: %w", err)
		}
		bucket.Category = "type-" + mode
		bucket.Details = map[string]interface{}{"mode": mode}
		counts = append(counts, bucket)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating type counters: %w", err)
	}

	return counts, nil
}

// StatsByStation joins stored vehicle positions to their nearest station
// and returns the top-N stations by sighting count.
func (a *Aggregator) StatsByStation(ctx context.Context, limit int) ([]transport.StatCount, error) {
	rows, err := a.db.DB().QueryContext(ctx, `
		SELECT nearest.station_id, nearest.name, COUNT(*) AS count
		FROM vehicle_positions vp
		CROSS JOIN LATERAL (
			SELECT s.station_id, s.name
			FROM stations s
			JOIN station_positions sp ON sp.station_pk = s.id
			ORDER BY (sp.lat - vp.lat) * (sp.lat - vp.lat)
				+ (sp.lng - vp.lng) * (sp.lng - vp.lng)
			LIMIT 1
		) nearest
		GROUP BY nearest.station_id, nearest.name
		ORDER BY count DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying station stats: %w", err)
	}
	defer rows.Close()

	today := dayBucket(time.Now().UTC())

	var counts []transport.StatCount
	for rows.Next() {
		var (
			stationID sql.NullString
			name      string
			count     int64
		)
		if err := rows.Scan(&stationID, &name, &count); err != nil {
			return nil, fmt.Errorf("scanning station counter: %w", err)
		}
		counts = append(counts, transport.StatCount{
			Timestamp: today,
			Category:  "station-" + stationID.String,
			Count:     count,
			Details: map[string]interface{}{
				"id":   stationID.String,
				"name": name,
			},
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating station counters: %w", err)
	}

	return counts, nil
}
