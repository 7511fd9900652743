// In-memory log capture for the export path
//
// Every status line emitted during a running scan is kept in a buffer
// and written into the result directory at slice completion.
// CaptureBuffer provides that: attach it to a Logger with SetCapture,
// drain it with Flush when the slice is exported.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Record is a single captured log record.
type Record struct {
	Time    time.Time
	Level   LogLevel
	Prefix  string
	Message string
	Fields  Fields
}

// CaptureBuffer retains log records in memory. Safe for concurrent use.
type CaptureBuffer struct {
	mu      sync.Mutex
	records []Record
}

// NewCaptureBuffer creates an empty capture buffer.
func NewCaptureBuffer() *CaptureBuffer {
	return &CaptureBuffer{}
}

func (b *CaptureBuffer) append(level LogLevel, prefix, msg string, fields Fields) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, Record{
		Time:    time.Now(),
		Level:   level,
		Prefix:  prefix,
		Message: msg,
		Fields:  fields,
	})
}

// Len returns the number of buffered records.
func (b *CaptureBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Records returns a copy of the buffered records.
func (b *CaptureBuffer) Records() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Record, len(b.records))
	copy(out, b.records)
	return out
}

// Reset discards all buffered records.
func (b *CaptureBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = nil
}

// WriteTo writes all buffered records to w as plain text, one record
// per line, and returns the number of bytes written. The buffer is
// not reset.
func (b *CaptureBuffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, rec := range b.Records() {
		line := fmt.Sprintf("%s [%-5s] %s: %s",
			rec.Time.Format("2006-01-02 15:04:05.000"), rec.Level, rec.Prefix, rec.Message)
		if len(rec.Fields) > 0 {
			line += fmt.Sprintf(" %v", map[string]interface{}(rec.Fields))
		}
		n, err := fmt.Fprintln(w, line)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
