package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"retail-analytics/internal/util"

	"go.uber.org/zap"
)

// RunTimestampLayout names the files of one report run
const RunTimestampLayout = "20060102_150405"

// RunTimestamp formats t as a report run stamp
func RunTimestamp(t time.Time) string {
	return t.Format(RunTimestampLayout)
}

// Writer saves report artifacts twice: once stamped with the run and once as
// the rolling "latest" copy
type Writer struct {
	dir    string
	runTS  string
	logger *zap.Logger
}

// Summary counts report files after a run
type Summary struct {
	TotalFiles int `json:"total_files"`
	RunFiles   int `json:"run_files"`
}

// NewWriter creates the report folder if needed
func NewWriter(dir, runTS string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report folder %s: %w", dir, err)
	}
	return &Writer{dir: dir, runTS: runTS, logger: util.GetLogger()}, nil
}

// RunTimestamp returns the stamp used for this writer's files
func (w *Writer) RunTimestamp() string {
	return w.runTS
}

// SaveWithLatest writes a CSV table as <name>_<run>.csv and <name>_latest.csv.
// A table without rows writes nothing and returns no paths.
func (w *Writer) SaveWithLatest(name string, header []string, rows [][]string) ([]string, error) {
	if len(rows) == 0 {
		w.logger.Debug("Skipping empty report table", zap.String("name", name))
		return nil, nil
	}

	return w.saveBoth(name, "csv", func(out io.Writer) error {
		cw := csv.NewWriter(out)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		return cw.Error()
	})
}

// SaveImage writes PNG bytes as <name>_<run>.png and <name>_latest.png
func (w *Writer) SaveImage(name string, png []byte) ([]string, error) {
	if len(png) == 0 {
		return nil, nil
	}
	return w.saveBoth(name, "png", func(out io.Writer) error {
		_, err := out.Write(png)
		return err
	})
}

func (w *Writer) saveBoth(name, ext string, write func(io.Writer) error) ([]string, error) {
	paths := []string{
		filepath.Join(w.dir, fmt.Sprintf("%s_%s.%s", name, w.runTS, ext)),
		filepath.Join(w.dir, fmt.Sprintf("%s_latest.%s", name, ext)),
	}

	for _, path := range paths {
		if err := writeFile(path, write); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		util.ReportFilesWritten.Inc()
	}

	w.logger.Info("Saved report",
		zap.String("path", paths[0]),
		zap.String("latest", paths[1]))
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Summary counts every file in the folder and those stamped with this run
func (w *Writer) Summary() (Summary, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list report folder: %w", err)
	}

	var s Summary
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		s.TotalFiles++
		if strings.Contains(e.Name(), w.runTS) {
			s.RunFiles++
		}
	}
	return s, nil
}
