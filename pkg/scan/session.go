// Per-slice measurement bookkeeping
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package scan

import (
	"fmt"
	"math"
	"sync"
	"time"

	"radscan-go-migration/pkg/config"
	"radscan-go-migration/pkg/log"
)

// SaturationLimit is the raw count above which a sample is considered
// saturated.
const SaturationLimit = 63200

// estimateAfter is the measurement count at which the end time is
// projected and the status notification fires.
const estimateAfter = 50

// Sample is one measurement result delivered by the acquisition
// pipeline.
type Sample struct {
	// Power is the integrated power scaled to one grid square.
	Power float64

	// PhotonFlux is the power over the cosine corrector area.
	PhotonFlux float64

	// Color is the sRGB rendering of the spectrum.
	Color [3]float64

	// Ratio is the pipeline's signal quality estimate.
	Ratio float64

	// Saturated is set when any raw count exceeded SaturationLimit.
	Saturated bool
}

// Session aggregates one slice's results: per-pixel arrays indexed by
// grid position, a saturation counter, and the running measurement
// count. Created at slice start, exported at slice completion, then
// discarded.
type Session struct {
	Name        string
	Comment     string
	Size        int
	IntTime     float64
	Averages    int
	ZPos        float64
	XStart      float64
	YStart      float64
	StartedAt   time.Time

	mu         sync.Mutex
	power      []float64
	photonFlux []float64
	color      [][3]float64
	xValues    []float64
	yValues    []float64
	ratio      []float64
	satCount   int
	measured   int
	estimate   time.Time
	hasEstim   bool

	// OnEstimate fires once, after the 50th measurement, with the
	// projected slice end time.
	OnEstimate func(endTime time.Time)

	logger *log.Logger
}

// NewSession starts bookkeeping for one slice.
func NewSession(cfg config.ScanConfig, zPos, intTime float64) *Session {
	n := cfg.Size * cfg.Size
	return &Session{
		Name:       cfg.Name,
		Comment:    cfg.Comment,
		Size:       cfg.Size,
		IntTime:    intTime,
		Averages:   cfg.Averages,
		ZPos:       zPos,
		XStart:     cfg.XStart,
		YStart:     cfg.YStart,
		StartedAt:  time.Now(),
		power:      make([]float64, n),
		photonFlux: make([]float64, n),
		color:      make([][3]float64, n),
		xValues:    make([]float64, n),
		yValues:    make([]float64, n),
		ratio:      make([]float64, n),
		logger:     log.GetLogger("session"),
	}
}

// PixelIndex maps a target position to its array slot: row-major over
// the grid, derived from the offsets inside the scanned area.
func (s *Session) PixelIndex(x, y float64) int {
	relX := round2(x-s.XStart-1.5*Spacing) / Spacing
	relY := round2(y-s.YStart-1.5*Spacing) / Spacing
	return int(math.Round(relY))*s.Size + int(math.Round(relX))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Record stores one sample at its pixel slot and advances the
// measurement counter.
func (s *Session) Record(x, y float64, sample Sample) {
	idx := s.PixelIndex(x, y)
	if idx < 0 || idx >= len(s.power) {
		s.logger.Warn("sample at %.3f/%.3f outside grid (index %d)", x, y, idx)
		return
	}

	s.mu.Lock()
	s.power[idx] = sample.Power
	s.photonFlux[idx] = sample.PhotonFlux
	s.color[idx] = sample.Color
	s.ratio[idx] = sample.Ratio
	s.xValues[idx] = round3(x - s.XStart)
	s.yValues[idx] = round3(y - s.YStart)
	if sample.Saturated {
		s.satCount++
		s.logger.Warn("saturation detected at %.3f/%.3f", x, y)
	}
	s.measured++
	count := s.measured
	s.mu.Unlock()

	if count == estimateAfter {
		s.projectEndTime()
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// projectEndTime extrapolates the slice end from the first 50
// measurements.
func (s *Session) projectEndTime() {
	elapsed := time.Since(s.StartedAt)
	total := time.Duration(float64(elapsed) / estimateAfter * float64(s.Size*s.Size))
	end := s.StartedAt.Add(total)

	s.mu.Lock()
	s.estimate = end
	s.hasEstim = true
	cb := s.OnEstimate
	s.mu.Unlock()

	s.logger.Info("approx end time: %s", end.Format("Monday, 02. Jan 15:04:05"))
	if cb != nil {
		cb(end)
	}
}

// Measured returns how many samples were recorded.
func (s *Session) Measured() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.measured
}

// Saturations returns the saturation counter.
func (s *Session) Saturations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.satCount
}

// EndEstimate returns the projected end time, if one exists yet.
func (s *Session) EndEstimate() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estimate, s.hasEstim
}

// Results returns copies of the per-pixel arrays for export.
func (s *Session) Results() (power, photonFlux, xs, ys, ratio []float64, color [][3]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	power = append([]float64(nil), s.power...)
	photonFlux = append([]float64(nil), s.photonFlux...)
	xs = append([]float64(nil), s.xValues...)
	ys = append([]float64(nil), s.yValues...)
	ratio = append([]float64(nil), s.ratio...)
	color = append([][3]float64(nil), s.color...)
	return
}

// Describe returns the metadata lines logged at slice start.
func (s *Session) Describe() string {
	return fmt.Sprintf("name=%s size=%d z=%.2f int_time=%.4f averages=%d",
		s.Name, s.Size, s.ZPos, s.IntTime, s.Averages)
}
