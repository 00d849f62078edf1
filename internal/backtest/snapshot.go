// Package backtest replays historical rebalancing snapshots through the risk aggregator.
package backtest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/riskguard/internal/modules/risk"
)

// Format identifies a snapshot file encoding
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// Snapshot is the proposed book for one rebalancing date.
type Snapshot struct {
	Date           time.Time   `json:"date" msgpack:"date"`
	Instruments    []string    `json:"instruments,omitempty" msgpack:"instruments,omitempty"`
	Positions      []float64   `json:"positions" msgpack:"positions"`
	Weighted       []float64   `json:"positions_weighted" msgpack:"positions_weighted"`
	Covariance     [][]float64 `json:"covariance_matrix" msgpack:"covariance_matrix"`
	JumpCovariance [][]float64 `json:"jump_covariance_matrix" msgpack:"jump_covariance_matrix"`
}

// Input converts the snapshot into an aggregator input.
func (s Snapshot) Input(limits risk.Limits, runID string) risk.Input {
	return risk.Input{
		Date:           s.Date,
		Positions:      s.Positions,
		Weighted:       s.Weighted,
		Covariance:     s.Covariance,
		JumpCovariance: s.JumpCovariance,
		Limits:         limits,
		RunID:          runID,
	}
}

// FormatFromPath infers the encoding from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".msgpack", ".mp":
		return FormatMsgpack, nil
	default:
		return "", fmt.Errorf("unsupported snapshot file extension %q", filepath.Ext(path))
	}
}

// LoadSnapshots reads a snapshot file and returns its snapshots sorted by date.
func LoadSnapshots(path string) ([]Snapshot, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()

	snapshots, err := DecodeSnapshots(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snapshots, nil
}

// DecodeSnapshots reads an array of snapshots and sorts them by date.
func DecodeSnapshots(r io.Reader, format Format) ([]Snapshot, error) {
	var snapshots []Snapshot
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&snapshots); err != nil {
			return nil, fmt.Errorf("failed to decode JSON snapshots: %w", err)
		}
	case FormatMsgpack:
		if err := msgpack.NewDecoder(r).Decode(&snapshots); err != nil {
			return nil, fmt.Errorf("failed to decode msgpack snapshots: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported snapshot format %q", format)
	}

	for i, s := range snapshots {
		if len(s.Instruments) > 0 && len(s.Instruments) != len(s.Weighted) {
			return nil, fmt.Errorf("snapshot %d (%s) lists %d instruments for %d weights: %w",
				i, s.Date.Format("2006-01-02"), len(s.Instruments), len(s.Weighted), risk.ErrDimensionMismatch)
		}
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].Date.Before(snapshots[j].Date)
	})
	return snapshots, nil
}

// EncodeSnapshots writes snapshots in the given format.
func EncodeSnapshots(w io.Writer, format Format, snapshots []Snapshot) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snapshots); err != nil {
			return fmt.Errorf("failed to encode JSON snapshots: %w", err)
		}
	case FormatMsgpack:
		if err := msgpack.NewEncoder(w).Encode(snapshots); err != nil {
			return fmt.Errorf("failed to encode msgpack snapshots: %w", err)
		}
	default:
		return fmt.Errorf("unsupported snapshot format %q", format)
	}
	return nil
}

// SaveSnapshots writes snapshots to path, choosing the encoding from its extension.
func SaveSnapshots(path string, snapshots []Snapshot) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	if err := EncodeSnapshots(f, format, snapshots); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
