// Slice result persistence
//
// Every slice gets its own directory under the run directory:
// <results>/<yymmdd_HHMMSS>_<name>/<z>_mm/ holding the per-pixel
// record, the scan metadata, the captured host log, and the charts.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"radscan-go-migration/pkg/errors"
	"radscan-go-migration/pkg/log"
	"radscan-go-migration/pkg/scan"
)

// Writer persists slice results into a timestamped run directory.
type Writer struct {
	runDir   string
	capture  *log.CaptureBuffer
	notifier Notifier
	logger   *log.Logger
}

// Metadata is the JSON header written next to the record.
type Metadata struct {
	Name        string    `json:"name"`
	Comment     string    `json:"comment,omitempty"`
	Size        int       `json:"size"`
	IntTime     float64   `json:"int_time"`
	Averages    int       `json:"averages"`
	ZPos        float64   `json:"z_pos"`
	Measured    int       `json:"measured"`
	Saturations int       `json:"saturations"`
	StartedAt   time.Time `json:"started_at"`
	ExportedAt  time.Time `json:"exported_at"`
}

// NewWriter creates the run directory for one scan job.
func NewWriter(resultsDir, name string, capture *log.CaptureBuffer, notifier Notifier) (*Writer, error) {
	runDir := filepath.Join(resultsDir,
		fmt.Sprintf("%s_%s", time.Now().Format("060102_150405"), name))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrRuntimeInit, "create run directory")
	}
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	return &Writer{
		runDir:   runDir,
		capture:  capture,
		notifier: notifier,
		logger:   log.GetLogger("export"),
	}, nil
}

// RunDir returns the run directory path.
func (w *Writer) RunDir() string {
	return w.runDir
}

// WriteSlice persists one finished session and returns the slice
// directory. The captured log is flushed into the directory and
// reset for the next slice.
func (w *Writer) WriteSlice(session *scan.Session) (string, error) {
	dir := filepath.Join(w.runDir,
		strconv.FormatFloat(session.ZPos, 'g', -1, 64)+"_mm")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, errors.ErrRuntime, "create slice directory")
	}

	if err := w.writeRecord(dir, session); err != nil {
		return "", err
	}
	if err := w.writeMetadata(dir, session); err != nil {
		return "", err
	}
	if err := w.writeCharts(dir, session); err != nil {
		return "", err
	}
	if err := w.flushLog(dir); err != nil {
		return "", err
	}

	w.logger.Info("slice exported to %s", dir)
	w.notify(session, dir)
	return dir, nil
}

func (w *Writer) writeRecord(dir string, session *scan.Session) error {
	f, err := os.Create(filepath.Join(dir, "record.csv"))
	if err != nil {
		return errors.Wrap(err, errors.ErrRuntime, "create record")
	}
	defer f.Close()

	power, flux, xs, ys, ratio, color := session.Results()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"index", "x", "y", "power", "photon_flux", "r", "g", "b", "ratio"}); err != nil {
		return err
	}
	for i := range power {
		rec := []string{
			strconv.Itoa(i),
			formatFloat(xs[i]),
			formatFloat(ys[i]),
			formatFloat(power[i]),
			formatFloat(flux[i]),
			formatFloat(color[i][0]),
			formatFloat(color[i][1]),
			formatFloat(color[i][2]),
			formatFloat(ratio[i]),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (w *Writer) writeMetadata(dir string, session *scan.Session) error {
	meta := Metadata{
		Name:        session.Name,
		Comment:     session.Comment,
		Size:        session.Size,
		IntTime:     session.IntTime,
		Averages:    session.Averages,
		ZPos:        session.ZPos,
		Measured:    session.Measured(),
		Saturations: session.Saturations(),
		StartedAt:   session.StartedAt,
		ExportedAt:  time.Now(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0644)
}

func (w *Writer) flushLog(dir string) error {
	if w.capture == nil {
		return nil
	}
	f, err := os.Create(filepath.Join(dir, "scan.log"))
	if err != nil {
		return errors.Wrap(err, errors.ErrRuntime, "create slice log")
	}
	defer f.Close()

	if _, err := w.capture.WriteTo(f); err != nil {
		return err
	}
	w.capture.Reset()
	return nil
}

func (w *Writer) notify(session *scan.Session, dir string) {
	subject := fmt.Sprintf("SCAN STATUS: %s, z position: %.2f", session.Name, session.ZPos)
	body := fmt.Sprintf("Slice complete. %s, saturations=%d, results in %s",
		session.Describe(), session.Saturations(), dir)
	if err := w.notifier.Notify(subject, body); err != nil {
		w.logger.Warn("notification failed: %v", err)
	}
}
