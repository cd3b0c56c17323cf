package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/san-kum/ktune/internal/harness"
)

// Store persists completed runs under a base directory, one
// subdirectory per run: metadata.json plus a CSV per recorded target.
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
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Timestamp  time.Time          `json:"timestamp"`
	Spec       harness.Spec       `json:"spec"`
	Targets    []string           `json:"targets"`
	Skipped    map[string]int     `json:"skipped,omitempty"`
	Aborted    map[string]string  `json:"aborted,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	ActuatorID int                `json:"actuator_id"`
}

// CSVHeader is the column layout of every per-target series file.
var CSVHeader = []string{"t", "cmd_pos", "cmd_vel", "meas_pos", "meas_vel"}

// Save writes one run directory and returns its id. Precomputed
// summary metrics are stored alongside so list/plot commands do not
// recompute them.
func (s *Store) Save(name string, actuatorID int, result *harness.Result, metrics map[string]float64) (string, error) {
	runID := fmt.Sprintf("%s_%d", result.Spec.Kind, time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", errors.Wrap(err, "create run dir")
	}

	meta := RunMetadata{
		ID:         runID,
		Name:       name,
		Timestamp:  time.Now(),
		Spec:       result.Spec,
		Skipped:    make(map[string]int),
		Aborted:    make(map[string]string),
		Metrics:    metrics,
		ActuatorID: actuatorID,
	}

	for _, label := range []string{harness.TargetSim, harness.TargetReal} {
		series := result.SeriesFor(label)
		if series == nil {
			continue
		}
		meta.Targets = append(meta.Targets, label)
		meta.Skipped[label] = series.Skipped
		if series.Aborted {
			meta.Aborted[label] = series.AbortReason
		}
		if err := writeSeries(filepath.Join(runDir, label+".csv"), series); err != nil {
			return "", err
		}
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", errors.Wrap(err, "create metadata")
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", errors.Wrap(err, "encode metadata")
	}

	return runID, nil
}

func writeSeries(path string, series *harness.Series) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create series file")
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write(CSVHeader); err != nil {
		return err
	}
	for _, sample := range series.Samples {
		row := []string{
			strconv.FormatFloat(sample.T, 'f', 6, 64),
			strconv.FormatFloat(sample.CmdPos, 'f', 6, 64),
			strconv.FormatFloat(sample.CmdVel, 'f', 6, 64),
			strconv.FormatFloat(sample.MeasPos, 'f', 6, 64),
			strconv.FormatFloat(sample.MeasVel, 'f', 6, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

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
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadSeries reads one target's CSV back into a series.
func (s *Store) LoadSeries(runID, target string) (*harness.Series, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, target+".csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.Errorf("series file for %s is empty", target)
	}

	series := &harness.Series{Target: target}
	for _, record := range records[1:] {
		if len(record) < 5 {
			continue
		}
		vals := make([]float64, 5)
		ok := true
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(record[i], 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}
		series.Samples = append(series.Samples, harness.Sample{
			T:       vals[0],
			CmdPos:  vals[1],
			CmdVel:  vals[2],
			MeasPos: vals[3],
			MeasVel: vals[4],
		})
	}
	return series, nil
}
