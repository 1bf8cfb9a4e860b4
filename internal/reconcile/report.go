// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reconcile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/datfetch/pkg/types"
)

// Report is the on-disk record of a run: what was wanted, what the server
// lacked, and which matched items could not be transferred. The user keeps
// it to fetch the remainder by hand.
type Report struct {
	Manifest   string               `json:"manifest" yaml:"manifest"`
	Origin     types.ManifestOrigin `json:"origin" yaml:"origin"`
	Collection string               `json:"collection" yaml:"collection"`
	Summary    ReportSummary        `json:"summary" yaml:"summary"`
	Missing    []string             `json:"missing,omitempty" yaml:"missing,omitempty"`
	Failed     []FailedItem         `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// ReportSummary stores counts and a timestamp.
type ReportSummary struct {
	Wanted         int       `json:"wanted" yaml:"wanted"`
	Available      int       `json:"available" yaml:"available"`
	Matched        int       `json:"matched" yaml:"matched"`
	Missing        int       `json:"missing" yaml:"missing"`
	Completed      int       `json:"completed" yaml:"completed"`
	AlreadyPresent int       `json:"already_present" yaml:"already_present"`
	Failed         int       `json:"failed" yaml:"failed"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
}

// FailedItem names a matched item whose transfer exhausted its attempts.
type FailedItem struct {
	Name   string `json:"name" yaml:"name"`
	URL    string `json:"url" yaml:"url"`
	Reason string `json:"reason" yaml:"reason"`
}

// NewReport builds a report from a reconciliation result. Transfer counts
// are filled in by AddOutcomes.
func NewReport(manifestPath string, origin types.ManifestOrigin, collection string, available int, res Result) *Report {
	return &Report{
		Manifest:   manifestPath,
		Origin:     origin,
		Collection: collection,
		Summary: ReportSummary{
			Wanted:    res.Total(),
			Available: available,
			Matched:   len(res.Matched),
			Missing:   len(res.Missing),
			Timestamp: time.Now().UTC(),
		},
		Missing: res.Missing,
	}
}

// AddOutcomes tallies transfer outcomes into the report.
func (r *Report) AddOutcomes(outcomes []types.TransferOutcome) {
	for _, o := range outcomes {
		switch o.Kind {
		case types.OutcomeCompleted:
			r.Summary.Completed++
		case types.OutcomeAlreadyPresent:
			r.Summary.AlreadyPresent++
		case types.OutcomeFailed:
			r.Summary.Failed++
			r.Failed = append(r.Failed, FailedItem{
				Name:   o.Task.DisplayName,
				URL:    o.Task.RemoteURL,
				Reason: o.Reason,
			})
		}
	}
}

// WriteReport saves the report to path, as JSON when the extension is
// .json and as YAML otherwise.
func WriteReport(path string, r *Report) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(r, "", "  ")
	} else {
		data, err = yaml.Marshal(r)
	}
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	var r Report
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &r)
	} else {
		err = yaml.Unmarshal(data, &r)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return &r, nil
}
