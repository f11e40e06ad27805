// Copyright 2017 Fortio Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metronconfig loads a Plan's execution parameters from a YAML
// file and merges CLI flag overrides on top: file first, flags override
// in-place, then -print-config dumps the effective, normalized result
// back out as YAML.
package metronconfig // import "metron.dev/metron/metronconfig"

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"metron.dev/metron/plan"
)

// SegmentFile is the YAML-friendly shape of a plan.Segment: one of Rate
// (Fixed) or RateStart/RateEnd (Linear) is set, Kind disambiguates.
type SegmentFile struct {
	Kind      string `yaml:"kind"` // "fixed" or "linear"
	Rate      uint32 `yaml:"rate,omitempty"`
	RateStart uint32 `yaml:"rate_start,omitempty"`
	RateEnd   uint32 `yaml:"rate_end,omitempty"`
	Duration  string `yaml:"duration,omitempty"` // parsed with time.ParseDuration
	Forever   bool   `yaml:"forever,omitempty"`
}

// HeaderFile is the YAML-friendly shape of a plan.Header.
type HeaderFile struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// File is the YAML document shape loaded from -config-file and written
// back out by -print-config. It mirrors plan.Plan field-for-field rather
// than embedding it directly so the wire format stays stable even if
// plan.Plan's internal representation changes (Duration as a string, not
// a raw nanosecond count, for human-editability).
type File struct {
	Segments          []SegmentFile `yaml:"segments"`
	Targets           []string      `yaml:"targets"`
	Method            string        `yaml:"method,omitempty"`
	Headers           []HeaderFile  `yaml:"headers,omitempty"`
	Payload           string        `yaml:"payload,omitempty"`
	Connections       int           `yaml:"connections,omitempty"`
	LatencyCorrection bool          `yaml:"latency_correction,omitempty"`
	SignallerKind     string        `yaml:"signaller_kind,omitempty"` // "blocking" or "cooperative"
	StopOnError       bool          `yaml:"stop_on_error,omitempty"`
	StopOnNon2xx      bool          `yaml:"stop_on_non_2xx,omitempty"`
}

// Load reads and parses a YAML config File from path. Passing "-" reads
// from stdin, for accepting piped config.
func Load(path string) (*File, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening config file %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &file, nil
}

// ToPlan converts a File into a plan.Plan ready for Validate/Normalize.
func (f *File) ToPlan() (*plan.Plan, error) {
	p := &plan.Plan{
		Targets:           append([]string(nil), f.Targets...),
		Method:            f.Method,
		Payload:           []byte(f.Payload),
		Connections:       f.Connections,
		LatencyCorrection: f.LatencyCorrection,
	}
	for i, s := range f.Segments {
		seg, err := s.toSegment()
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		p.Segments = append(p.Segments, seg)
	}
	for _, h := range f.Headers {
		p.Headers = append(p.Headers, plan.Header{Name: h.Name, Value: h.Value})
	}
	return p, nil
}

func (s SegmentFile) toSegment() (plan.Segment, error) {
	var d time.Duration
	if s.Duration != "" {
		parsed, err := time.ParseDuration(s.Duration)
		if err != nil {
			return plan.Segment{}, fmt.Errorf("invalid duration %q: %w", s.Duration, err)
		}
		d = parsed
	}
	switch s.Kind {
	case "", "fixed":
		if s.Forever {
			return plan.FixedForever(plan.Rate(s.Rate)), nil
		}
		return plan.FixedSegment(plan.Rate(s.Rate), d), nil
	case "linear":
		return plan.LinearSegment(plan.Rate(s.RateStart), plan.Rate(s.RateEnd), d), nil
	default:
		return plan.Segment{}, fmt.Errorf("unknown segment kind %q", s.Kind)
	}
}

// FromPlan converts a normalized plan.Plan into its YAML File shape, for
// -print-config.
func FromPlan(p *plan.Plan, signallerKind string, stopOnError, stopOnNon2xx bool) *File {
	f := &File{
		Targets:           append([]string(nil), p.Targets...),
		Method:            p.Method,
		Payload:           string(p.Payload),
		Connections:       p.Connections,
		LatencyCorrection: p.LatencyCorrection,
		SignallerKind:     signallerKind,
		StopOnError:       stopOnError,
		StopOnNon2xx:      stopOnNon2xx,
	}
	for _, s := range p.Segments {
		sf := SegmentFile{Forever: s.Forever}
		if !s.Forever {
			sf.Duration = s.Duration.String()
		}
		switch s.Kind {
		case plan.Fixed:
			sf.Kind = "fixed"
			sf.Rate = uint32(s.Rate)
		case plan.Linear:
			sf.Kind = "linear"
			sf.RateStart = uint32(s.RateStart)
			sf.RateEnd = uint32(s.RateEnd)
		}
		f.Segments = append(f.Segments, sf)
	}
	for _, h := range p.Headers {
		f.Headers = append(f.Headers, HeaderFile{Name: h.Name, Value: h.Value})
	}
	return f
}

// Print writes f to out as YAML, the format -print-config dumps in.
func Print(out io.Writer, f *File) error {
	enc := yaml.NewEncoder(out)
	defer enc.Close()
	return enc.Encode(f)
}
