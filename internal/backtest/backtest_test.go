package backtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskguard/internal/modules/risk"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func diag(values ...float64) [][]float64 {
	m := make([][]float64, len(values))
	for i := range m {
		m[i] = make([]float64, len(values))
		m[i][i] = values[i]
	}
	return m
}

// snapshot builds a two-asset book whose gross leverage is 2*w.
func snapshot(date time.Time, w float64) Snapshot {
	return Snapshot{
		Date:           date,
		Instruments:    []string{"AAA", "BBB"},
		Positions:      []float64{100, -100},
		Weighted:       []float64{w, -w},
		Covariance:     diag(0.0001, 0.0001),
		JumpCovariance: diag(0.0001, 0.0001),
	}
}

func replayLimits() risk.Limits {
	return risk.Limits{MaxLeverage: 1, MaxCorrelationRisk: 10, MaxPortfolioVolatility: 10, MaxJumpRisk: 10}
}

func TestSnapshotCodec_FileFormats(t *testing.T) {
	snapshots := []Snapshot{snapshot(day(1), 0.25), snapshot(day(0), 1)}

	for _, ext := range []string{".json", ".msgpack"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "snapshots"+ext)
			require.NoError(t, SaveSnapshots(path, snapshots))

			loaded, err := LoadSnapshots(path)
			require.NoError(t, err)
			require.Len(t, loaded, 2)

			// sorted by date on load
			assert.True(t, day(0).Equal(loaded[0].Date))
			assert.True(t, day(1).Equal(loaded[1].Date))
			assert.Equal(t, []string{"AAA", "BBB"}, loaded[0].Instruments)
			assert.Equal(t, []float64{1, -1}, loaded[0].Weighted)
			assert.Equal(t, diag(0.0001, 0.0001), loaded[0].Covariance)
		})
	}
}

func TestDecodeSnapshots_JSONFieldNames(t *testing.T) {
	doc := `[{
		"date": "2024-02-01T00:00:00Z",
		"positions": [100, -50],
		"positions_weighted": [0.4, -0.2],
		"covariance_matrix": [[0.0001, 0], [0, 0.0001]],
		"jump_covariance_matrix": [[0.0001, 0], [0, 0.0001]]
	}]`

	snapshots, err := DecodeSnapshots(strings.NewReader(doc), FormatJSON)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, []float64{0.4, -0.2}, snapshots[0].Weighted)
	assert.Len(t, snapshots[0].JumpCovariance, 2)
}

func TestDecodeSnapshots_Errors(t *testing.T) {
	_, err := DecodeSnapshots(strings.NewReader("{not json"), FormatJSON)
	assert.Error(t, err)

	_, err = DecodeSnapshots(bytes.NewReader([]byte{0xc1}), FormatMsgpack)
	assert.Error(t, err)

	_, err = DecodeSnapshots(strings.NewReader("[]"), Format("csv"))
	assert.Error(t, err)

	doc := `[{"date": "2024-02-01T00:00:00Z", "instruments": ["A"], "positions": [1, 2], "positions_weighted": [0.1, 0.2]}]`
	_, err = DecodeSnapshots(strings.NewReader(doc), FormatJSON)
	assert.True(t, errors.Is(err, risk.ErrDimensionMismatch))
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"a.json", FormatJSON, false},
		{"a.JSON", FormatJSON, false},
		{"a.msgpack", FormatMsgpack, false},
		{"a.mp", FormatMsgpack, false},
		{"a.csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadSnapshots_MissingFile(t *testing.T) {
	_, err := LoadSnapshots(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestReplayer_Run(t *testing.T) {
	sink := risk.NewMemorySink()
	agg := risk.NewAggregator(sink, testLogger())
	replayer := NewReplayer(agg, testLogger(), WithWorkers(3))
	replayer.newRunID = func() string { return "run-fixed" }

	// leverage 2*w against a ceiling of 1: only w > 0.5 breaches
	weights := []float64{0.25, 1.0, 0.5, 2.0, 0.1, 0.75}
	snapshots := make([]Snapshot, len(weights))
	for i, w := range weights {
		snapshots[i] = snapshot(day(i), w)
	}

	report, err := replayer.Run(context.Background(), snapshots, replayLimits())
	require.NoError(t, err)

	assert.Equal(t, "run-fixed", report.RunID)
	require.Len(t, report.Dates, len(weights))
	for i, w := range weights {
		d := report.Dates[i]
		assert.True(t, day(i).Equal(d.Date), "date order preserved")
		expected := 1.0
		if 2*w > 1 {
			expected = 1 / (2 * w)
		}
		assert.InDelta(t, expected, d.Multiplier, 1e-12, "date %d", i)
		assert.InDelta(t, 100*expected, d.Positions[0], 1e-9)
	}

	assert.Equal(t, 3, report.ScaledDates)
	assert.Equal(t, 3, report.BreachCounts[risk.CategoryLeverage])
	assert.Equal(t, 3, report.BindingCounts[risk.CategoryLeverage])
	assert.InDelta(t, 0.25, report.MinMultiplier, 1e-12)
	assert.Less(t, report.MeanMultiplier, 1.0)

	events := sink.Events()
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, "run-fixed", e.RunID)
	}
}

func TestReplayer_RunAssignsFreshRunIDs(t *testing.T) {
	replayer := NewReplayer(risk.NewAggregator(nil, testLogger()), testLogger())
	snapshots := []Snapshot{snapshot(day(0), 0.1)}

	first, err := replayer.Run(context.Background(), snapshots, replayLimits())
	require.NoError(t, err)
	second, err := replayer.Run(context.Background(), snapshots, replayLimits())
	require.NoError(t, err)

	assert.NotEmpty(t, first.RunID)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestReplayer_RunStopsOnInvalidSnapshot(t *testing.T) {
	replayer := NewReplayer(risk.NewAggregator(nil, testLogger()), testLogger(), WithWorkers(2))

	bad := snapshot(day(1), 0.5)
	bad.Covariance = diag(0.0001)
	snapshots := []Snapshot{snapshot(day(0), 0.5), bad, snapshot(day(2), 0.5)}

	report, err := replayer.Run(context.Background(), snapshots, replayLimits())
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, risk.ErrDimensionMismatch))
	assert.Contains(t, err.Error(), "snapshot 1 (2024-01-02)")
}

func TestReplayer_RunRejectsInvalidLimits(t *testing.T) {
	replayer := NewReplayer(risk.NewAggregator(nil, testLogger()), testLogger())

	limits := replayLimits()
	limits.MaxJumpRisk = 0
	_, err := replayer.Run(context.Background(), []Snapshot{snapshot(day(0), 0.5)}, limits)
	assert.True(t, errors.Is(err, risk.ErrInvalidLimit))
}

func TestReplayer_RunCanceled(t *testing.T) {
	replayer := NewReplayer(risk.NewAggregator(nil, testLogger()), testLogger(), WithWorkers(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := replayer.Run(ctx, []Snapshot{snapshot(day(0), 0.5)}, replayLimits())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplayer_EmptyRun(t *testing.T) {
	replayer := NewReplayer(risk.NewAggregator(nil, testLogger()), testLogger())

	report, err := replayer.Run(context.Background(), nil, replayLimits())
	require.NoError(t, err)
	assert.Empty(t, report.Dates)
	assert.Equal(t, 1.0, report.MinMultiplier)
	assert.Equal(t, 0, report.ScaledDates)
}

func TestReport_WriteSummary(t *testing.T) {
	replayer := NewReplayer(risk.NewAggregator(nil, testLogger()), testLogger())
	replayer.newRunID = func() string { return "run-summary" }

	report, err := replayer.Run(context.Background(), []Snapshot{
		snapshot(day(0), 0.25),
		snapshot(day(1), 1.0),
	}, replayLimits())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.WriteSummary(&buf))
	out := buf.String()

	assert.Contains(t, out, "run-summary")
	assert.Contains(t, out, "Leverage breaches")
	assert.Contains(t, out, "2024-01-02")
	assert.NotContains(t, out, "2024-01-01")
	assert.Contains(t, out, fmt.Sprintf("%.4f", 0.5))
}

func TestSaveSnapshots_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.txt")
	assert.Error(t, SaveSnapshots(path, nil))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
