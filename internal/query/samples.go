package query

import (
	"fmt"
	"strings"
)

// SampleQueryLimit caps the row count of the multi-page sample query.
const SampleQueryLimit = 200

// sampleQueries use $TABLE for the qualified table name and $HOST for the
// host under study.
var sampleQueries = []string{
	// Average and tail CPU for one host, 15 second bins.
	`SELECT region, az, hostname, BIN(time, 15s) AS binned_timestamp,
	ROUND(AVG(cpu_utilization), 2) AS avg_cpu_utilization,
	ROUND(APPROX_PERCENTILE(cpu_utilization, 0.9), 2) AS p90_cpu_utilization,
	ROUND(APPROX_PERCENTILE(cpu_utilization, 0.95), 2) AS p95_cpu_utilization,
	ROUND(APPROX_PERCENTILE(cpu_utilization, 0.99), 2) AS p99_cpu_utilization
	FROM $TABLE
	WHERE measure_name = 'metrics' AND hostname = '$HOST' AND time > ago(2h)
	GROUP BY region, hostname, az, BIN(time, 15s)
	ORDER BY binned_timestamp ASC`,

	// Hosts running 10% above the fleet average.
	`WITH avg_fleet_utilization AS (
	SELECT COUNT(DISTINCT hostname) AS total_host_count, AVG(cpu_utilization) AS fleet_avg_cpu_utilization
	FROM $TABLE WHERE measure_name = 'metrics' AND time > ago(2h)), avg_per_host_cpu AS (
	SELECT region, az, hostname, AVG(cpu_utilization) AS avg_cpu_utilization
	FROM $TABLE
	WHERE measure_name = 'metrics' AND time > ago(2h)
	GROUP BY region, az, hostname)
	SELECT region, az, hostname, avg_cpu_utilization, fleet_avg_cpu_utilization
	FROM avg_fleet_utilization, avg_per_host_cpu
	WHERE avg_cpu_utilization > 1.1 * fleet_avg_cpu_utilization
	ORDER BY avg_cpu_utilization DESC`,

	// 30 second bins for one host.
	`SELECT BIN(time, 30s) AS binned_timestamp, ROUND(AVG(cpu_utilization), 2) AS avg_cpu_utilization,
	hostname FROM $TABLE
	WHERE measure_name = 'metrics' AND hostname = '$HOST' AND time > ago(2h)
	GROUP BY hostname, BIN(time, 30s)
	ORDER BY binned_timestamp ASC`,

	// Linear interpolation.
	`WITH binned_timeseries AS (
	SELECT hostname, BIN(time, 30s) AS binned_timestamp, ROUND(AVG(cpu_utilization), 2) AS avg_cpu_utilization
	FROM $TABLE WHERE measure_name = 'metrics' AND hostname = '$HOST' AND time > ago(2h)
	GROUP BY hostname, BIN(time, 30s)), interpolated_timeseries AS (
	SELECT hostname, INTERPOLATE_LINEAR(
	CREATE_TIME_SERIES(binned_timestamp, avg_cpu_utilization),
	SEQUENCE(min(binned_timestamp), max(binned_timestamp), 15s)) AS interpolated_avg_cpu_utilization
	FROM binned_timeseries
	GROUP BY hostname)
	SELECT time, ROUND(value, 2) AS interpolated_cpu
	FROM interpolated_timeseries
	CROSS JOIN UNNEST(interpolated_avg_cpu_utilization)`,

	// Last observation carried forward.
	`WITH binned_timeseries AS (
	SELECT hostname, BIN(time, 30s) AS binned_timestamp, ROUND(AVG(cpu_utilization), 2) AS avg_cpu_utilization
	FROM $TABLE WHERE measure_name = 'metrics' AND hostname = '$HOST' AND time > ago(2h)
	GROUP BY hostname, BIN(time, 30s)), interpolated_timeseries AS (
	SELECT hostname, INTERPOLATE_LOCF(CREATE_TIME_SERIES(binned_timestamp, avg_cpu_utilization),
	SEQUENCE(min(binned_timestamp), max(binned_timestamp), 15s)) AS interpolated_avg_cpu_utilization
	FROM binned_timeseries
	GROUP BY hostname)
	SELECT time, ROUND(value, 2) AS interpolated_cpu FROM interpolated_timeseries
	CROSS JOIN UNNEST(interpolated_avg_cpu_utilization)`,

	// Constant fill.
	`WITH binned_timeseries AS (
	SELECT hostname, BIN(time, 30s) AS binned_timestamp, ROUND(AVG(cpu_utilization), 2) AS avg_cpu_utilization
	FROM $TABLE
	WHERE measure_name = 'metrics' AND hostname = '$HOST' AND time > ago(2h)
	GROUP BY hostname, BIN(time, 30s)), interpolated_timeseries AS (
	SELECT hostname,
	INTERPOLATE_FILL(CREATE_TIME_SERIES(binned_timestamp, avg_cpu_utilization),
	SEQUENCE(min(binned_timestamp), max(binned_timestamp), 15s), 10.0) AS interpolated_avg_cpu_utilization
	FROM binned_timeseries
	GROUP BY hostname)
	SELECT time, ROUND(value, 2) AS interpolated_cpu
	FROM interpolated_timeseries
	CROSS JOIN UNNEST(interpolated_avg_cpu_utilization)`,

	// Cubic spline.
	`WITH binned_timeseries AS (
	SELECT hostname, BIN(time, 30s) AS binned_timestamp, ROUND(AVG(cpu_utilization), 2) AS avg_cpu_utilization
	FROM $TABLE
	WHERE measure_name = 'metrics' AND hostname = '$HOST' AND time > ago(2h)
	GROUP BY hostname, BIN(time, 30s)), interpolated_timeseries AS (
	SELECT hostname, INTERPOLATE_SPLINE_CUBIC(
	CREATE_TIME_SERIES(binned_timestamp, avg_cpu_utilization),
	SEQUENCE(min(binned_timestamp), max(binned_timestamp), 15s)) AS interpolated_avg_cpu_utilization
	FROM binned_timeseries
	GROUP BY hostname)
	SELECT time, ROUND(value, 2) AS interpolated_cpu
	FROM interpolated_timeseries CROSS JOIN UNNEST(interpolated_avg_cpu_utilization)`,

	// Fleet-wide interpolated averages.
	`WITH per_host_min_max_timestamp AS (
	SELECT hostname, min(time) as min_timestamp, max(time) as max_timestamp
	FROM $TABLE
	WHERE measure_name = 'metrics' AND time > ago(2h)
	GROUP BY hostname), interpolated_timeseries AS (
	SELECT m.hostname,
	INTERPOLATE_LOCF(
	CREATE_TIME_SERIES(time, cpu_utilization),
	SEQUENCE(MIN(ph.min_timestamp), MAX(ph.max_timestamp), 30s)) as interpolated_avg_cpu_utilization
	FROM $TABLE m
	INNER JOIN per_host_min_max_timestamp ph ON m.hostname = ph.hostname
	WHERE measure_name = 'metrics' AND time > ago(2h)
	GROUP BY m.hostname)
	SELECT hostname, AVG(cpu_utilization) AS avg_cpu_utilization
	FROM interpolated_timeseries
	CROSS JOIN UNNEST(interpolated_avg_cpu_utilization) AS t (time, cpu_utilization)
	GROUP BY hostname
	ORDER BY avg_cpu_utilization DESC`,

	// Share of points above 70%. Returns a time series and a row-typed reduction.
	`WITH time_series_view AS (
	SELECT INTERPOLATE_LINEAR(
	CREATE_TIME_SERIES(time, ROUND(cpu_utilization,2)),
	SEQUENCE(min(time), max(time), 10s)) AS interpolated_cpu_utilization
	FROM $TABLE
	WHERE hostname = '$HOST' AND measure_name = 'metrics' AND time > ago(2h)
	GROUP BY hostname)
	SELECT FILTER(interpolated_cpu_utilization, x -> x.value > 70.0) AS cpu_above_threshold,
	REDUCE(FILTER(interpolated_cpu_utilization, x -> x.value > 70.0), 0, (s, x) -> s + 1, s -> s) AS count_cpu_above_threshold,
	ROUND(REDUCE(interpolated_cpu_utilization, CAST(ROW(0, 0) AS ROW(count_high BIGINT, count_total BIGINT)),
	(s, x) -> CAST(ROW(s.count_high + IF(x.value > 70.0, 1, 0), s.count_total + 1) AS ROW(count_high BIGINT, count_total BIGINT)),
	s -> IF(s.count_total = 0, NULL, CAST(s.count_high AS DOUBLE) / s.count_total)), 4) AS fraction_cpu_above_threshold
	FROM time_series_view`,

	// Points below 75%.
	`WITH time_series_view AS (
	SELECT min(time) AS oldest_time, INTERPOLATE_LINEAR(
	CREATE_TIME_SERIES(time, ROUND(cpu_utilization, 2)),
	SEQUENCE(min(time), max(time), 10s)) AS interpolated_cpu_utilization
	FROM $TABLE
	WHERE hostname = '$HOST' AND measure_name = 'metrics' AND time > ago(2h)
	GROUP BY hostname)
	SELECT FILTER(interpolated_cpu_utilization, x -> x.value < 75 AND x.time > oldest_time + 1m)
	FROM time_series_view`,

	// Point count.
	`WITH time_series_view AS (
	SELECT INTERPOLATE_LINEAR(
	CREATE_TIME_SERIES(time, ROUND(cpu_utilization, 2)),
	SEQUENCE(min(time), max(time), 10s)) AS interpolated_cpu_utilization
	FROM $TABLE
	WHERE hostname = '$HOST' AND measure_name = 'metrics' AND time > ago(2h)
	GROUP BY hostname)
	SELECT REDUCE(interpolated_cpu_utilization, DOUBLE '0.0', (s, x) -> s + 1, s -> s) AS count_cpu
	FROM time_series_view`,

	// Interpolated average via a row accumulator.
	`WITH time_series_view AS (
	SELECT INTERPOLATE_LINEAR(CREATE_TIME_SERIES(time, ROUND(cpu_utilization, 2)),
	SEQUENCE(min(time), max(time), 10s)) AS interpolated_cpu_utilization
	FROM $TABLE
	WHERE hostname = '$HOST' AND measure_name = 'metrics' AND time > ago(2h)
	GROUP BY hostname)
	SELECT REDUCE(interpolated_cpu_utilization,
	CAST(ROW(0.0, 0) AS ROW(sum DOUBLE, count INTEGER)),
	(s, x) -> CAST(ROW(x.value + s.sum, s.count + 1) AS ROW(sum DOUBLE, count INTEGER)),
	s -> IF(s.count = 0, NULL, s.sum / s.count)) AS avg_cpu
	FROM time_series_view`,

	// Multi-page scan.
	`SELECT * FROM $TABLE LIMIT $LIMIT`,
}

// SampleQueries returns the host-metrics sample queries against
// database.table, focused on host where a query targets a single host.
func SampleQueries(database, table, host string) []string {
	r := strings.NewReplacer(
		"$TABLE", database+"."+table,
		"$HOST", host,
		"$LIMIT", fmt.Sprint(SampleQueryLimit),
	)
	out := make([]string, len(sampleQueries))
	for i, q := range sampleQueries {
		out[i] = strings.Join(strings.Fields(r.Replace(q)), " ")
	}
	return out
}
