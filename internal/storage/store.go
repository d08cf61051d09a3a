package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/magmc/internal/config"
	"github.com/san-kum/magmc/internal/experiment"
)

const (
	metadataFile = "metadata.json"
	traceFile    = "trace.csv"
	momentsFile  = "moments.csv"
	biasFile     = "bias.csv"
	scanFile     = "scan.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Kind        string             `json:"kind"`
	Timestamp   time.Time          `json:"timestamp"`
	Seed        int64              `json:"seed"`
	Atoms       int                `json:"atoms"`
	Temperature float64            `json:"temperature"`
	Lambda      float64            `json:"lambda"`
	Sweeps      int                `json:"sweeps"`
	Metrics     map[string]float64 `json:"metrics"`
	Config      *config.Config     `json:"config,omitempty"`
}

func (s *Store) create(kind string) (string, string, error) {
	runID := fmt.Sprintf("%s_%s", kind, uuid.NewString()[:8])
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", "", err
	}
	return runID, runDir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCSV(path string, header []string, rows [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, v := range row {
			record[i] = strconv.FormatFloat(v, 'g', 10, 64)
		}
		if err := w.Write(record[:len(row)]); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func readCSV(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	rows := make([][]float64, 0, max(len(records)-1, 0))
	for i := 1; i < len(records); i++ {
		row := make([]float64, 0, len(records[i]))
		for _, field := range records[i] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), i+1, err)
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Save stores a sampled run: its metadata, the per-sweep trace, the final
// moments and the bias potential when one was active.
func (s *Store) Save(kind string, cfg *config.Config, res *experiment.Result) (string, error) {
	runID, runDir, err := s.create(kind)
	if err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:          runID,
		Kind:        kind,
		Timestamp:   time.Now(),
		Seed:        cfg.Seed,
		Atoms:       len(res.Moments) / 3,
		Temperature: res.Temperature,
		Lambda:      res.Lambda,
		Sweeps:      res.Sweeps,
		Metrics:     res.Metrics(),
		Config:      cfg,
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}

	trace := make([][]float64, len(res.Samples))
	for i, smp := range res.Samples {
		trace[i] = []float64{float64(smp.Sweep), smp.Energy[0], smp.Energy[1], smp.Magnetization, smp.Acceptance}
	}
	if err := writeCSV(filepath.Join(runDir, traceFile), []string{"sweep", "e0", "e1", "magnetization", "acceptance"}, trace); err != nil {
		return "", err
	}

	if err := s.writeMoments(runDir, res.Moments); err != nil {
		return "", err
	}

	if len(res.BiasX) > 0 {
		rows := make([][]float64, len(res.BiasX))
		for i := range rows {
			rows[i] = []float64{res.BiasX[i], res.BiasV[i]}
		}
		if err := writeCSV(filepath.Join(runDir, biasFile), []string{"x", "bias"}, rows); err != nil {
			return "", err
		}
	}
	return runID, nil
}

func (s *Store) writeMoments(runDir string, moments []float64) error {
	rows := make([][]float64, len(moments)/3)
	for i := range rows {
		rows[i] = []float64{float64(i), moments[3*i], moments[3*i+1], moments[3*i+2]}
	}
	return writeCSV(filepath.Join(runDir, momentsFile), []string{"site", "mx", "my", "mz"}, rows)
}

// SaveMoments stores a configuration without a trace, e.g. the result of
// a minimization.
func (s *Store) SaveMoments(kind string, cfg *config.Config, moments []float64, metrics map[string]float64) (string, error) {
	runID, runDir, err := s.create(kind)
	if err != nil {
		return "", err
	}
	meta := RunMetadata{
		ID:        runID,
		Kind:      kind,
		Timestamp: time.Now(),
		Seed:      cfg.Seed,
		Atoms:     len(moments) / 3,
		Lambda:    cfg.Lambda,
		Metrics:   metrics,
		Config:    cfg,
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	return runID, s.writeMoments(runDir, moments)
}

// SaveScan stores the points of a lambda or temperature scan.
func (s *Store) SaveScan(kind string, cfg *config.Config, points []experiment.ScanPoint, metrics map[string]float64) (string, error) {
	runID, runDir, err := s.create(kind)
	if err != nil {
		return "", err
	}
	meta := RunMetadata{
		ID:          runID,
		Kind:        kind,
		Timestamp:   time.Now(),
		Seed:        cfg.Seed,
		Atoms:       cfg.Atoms,
		Temperature: cfg.Temperature,
		Sweeps:      cfg.Iterations,
		Metrics:     metrics,
		Config:      cfg,
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	rows := make([][]float64, len(points))
	for i, p := range points {
		rows[i] = []float64{p.Lambda, p.Temperature, p.MeanEnergy, p.EnergyVariance, p.MeanDifference, p.HeatCapacity, p.Acceptance}
	}
	header := []string{"lambda", "temperature", "mean_energy", "energy_variance", "mean_difference", "heat_capacity", "acceptance"}
	return runID, writeCSV(filepath.Join(runDir, scanFile), header, rows)
}

// List returns every stored run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadTrace(runID string) ([]experiment.Sample, error) {
	rows, err := readCSV(filepath.Join(s.baseDir, runID, traceFile))
	if err != nil {
		return nil, err
	}
	samples := make([]experiment.Sample, 0, len(rows))
	for _, r := range rows {
		if len(r) < 5 {
			continue
		}
		samples = append(samples, experiment.Sample{
			Sweep:         int(r[0]),
			Energy:        [2]float64{r[1], r[2]},
			Magnetization: r[3],
			Acceptance:    r[4],
		})
	}
	return samples, nil
}

// LoadMoments returns the stored moments flattened as x0 y0 z0 x1 ...
func (s *Store) LoadMoments(runID string) ([]float64, error) {
	rows, err := readCSV(filepath.Join(s.baseDir, runID, momentsFile))
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, 3*len(rows))
	for _, r := range rows {
		if len(r) < 4 {
			continue
		}
		out = append(out, r[1], r[2], r[3])
	}
	return out, nil
}

func (s *Store) LoadScan(runID string) ([]experiment.ScanPoint, error) {
	rows, err := readCSV(filepath.Join(s.baseDir, runID, scanFile))
	if err != nil {
		return nil, err
	}
	points := make([]experiment.ScanPoint, 0, len(rows))
	for _, r := range rows {
		if len(r) < 7 {
			continue
		}
		points = append(points, experiment.ScanPoint{
			Lambda: r[0], Temperature: r[1], MeanEnergy: r[2], EnergyVariance: r[3],
			MeanDifference: r[4], HeatCapacity: r[5], Acceptance: r[6],
		})
	}
	return points, nil
}

// CopyTrace copies the trace CSV of a run to path.
func (s *Store) CopyTrace(runID, path string) error {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, traceFile))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
