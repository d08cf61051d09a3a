package storage

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/san-kum/magmc/internal/experiment"
)

type ExportData struct {
	Meta    RunMetadata            `json:"meta"`
	Trace   []experiment.Sample    `json:"trace,omitempty"`
	Moments []float64              `json:"moments,omitempty"`
	Scan    []experiment.ScanPoint `json:"scan,omitempty"`
}

// Export gathers everything stored for a run. Missing parts are left
// empty.
func (s *Store) Export(runID string) (*ExportData, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	data := &ExportData{Meta: *meta}
	dir := filepath.Join(s.baseDir, runID)
	if exists(filepath.Join(dir, traceFile)) {
		if data.Trace, err = s.LoadTrace(runID); err != nil {
			return nil, err
		}
	}
	if exists(filepath.Join(dir, momentsFile)) {
		if data.Moments, err = s.LoadMoments(runID); err != nil {
			return nil, err
		}
	}
	if exists(filepath.Join(dir, scanFile)) {
		if data.Scan, err = s.LoadScan(runID); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *Store) ExportJSON(w io.Writer, runID string) error {
	data, err := s.Export(runID)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
