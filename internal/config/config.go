// Package config loads conversion job files.
//
// A job names the instrument definition, the legacy source file and the
// output file, plus optional copy rules, extra shapes, users and fake event
// generation. Jobs are TOML (.toml) or YAML (.yaml, .yml). Relative paths
// are resolved against the directory holding the job file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/scigolib/nexus/internal/writer"
)

// Job is one conversion run.
type Job struct {
	Instrument  string      `toml:"instrument" yaml:"instrument"`
	Source      string      `toml:"source" yaml:"source"`
	Output      string      `toml:"output" yaml:"output"`
	EntryName   string      `toml:"entry_name" yaml:"entry_name"`
	Overwrite   string      `toml:"overwrite" yaml:"overwrite"`
	Compression Compression `toml:"compression" yaml:"compression"`
	Copy        []CopyRule  `toml:"copy" yaml:"copy"`
	Shapes      []Shape     `toml:"shapes" yaml:"shapes"`
	Users       []User      `toml:"users" yaml:"users"`
	FakeEvents  *FakeEvents `toml:"fake_events" yaml:"fake_events"`
	Verify      bool        `toml:"verify" yaml:"verify"`
}

// Compression selects dataset compression. Type is "" or "none" for no
// compression, or "gzip".
type Compression struct {
	Type        string `toml:"type" yaml:"type"`
	Level       int    `toml:"level" yaml:"level"`
	MinElements uint64 `toml:"min_elements" yaml:"min_elements"`
}

// CopyRule carries a source entry into the output. Truncate keeps only the
// first rows of a dataset; zero keeps everything.
type CopyRule struct {
	From     string `toml:"from" yaml:"from"`
	To       string `toml:"to" yaml:"to"`
	Truncate uint64 `toml:"truncate" yaml:"truncate"`
}

// Shape adds an OFF mesh as a solid geometry group under Group.
type Shape struct {
	File  string `toml:"file" yaml:"file"`
	Group string `toml:"group" yaml:"group"`
	Name  string `toml:"name" yaml:"name"`
}

// User is written as an NXuser group.
type User struct {
	Name           string `toml:"name" yaml:"name"`
	Email          string `toml:"email" yaml:"email"`
	Facility       string `toml:"facility" yaml:"facility"`
	FacilityUserID string `toml:"facility_user_id" yaml:"facility_user_id"`
	Affiliation    string `toml:"affiliation" yaml:"affiliation"`
}

// FakeEvents configures synthetic NXevent_data for every detector.
type FakeEvents struct {
	EventsPerPulse int     `toml:"events_per_pulse" yaml:"events_per_pulse"`
	Pulses         int     `toml:"pulses" yaml:"pulses"`
	FrequencyHz    float64 `toml:"frequency_hz" yaml:"frequency_hz"`
	TOFMin         float64 `toml:"tof_min" yaml:"tof_min"`
	TOFMax         float64 `toml:"tof_max" yaml:"tof_max"`
	Seed           int64   `toml:"seed" yaml:"seed"`
}

// Load reads and validates a job file.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}

	var job Job
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&job); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&job); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("job file %s: unsupported extension %q (want .toml, .yaml or .yml)", path, ext)
	}

	job.resolve(filepath.Dir(path))
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("job file %s: %w", path, err)
	}
	return &job, nil
}

func (j *Job) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	j.Instrument = abs(j.Instrument)
	j.Source = abs(j.Source)
	j.Output = abs(j.Output)
	for i := range j.Shapes {
		j.Shapes[i].File = abs(j.Shapes[i].File)
	}
}

// Validate checks required fields and value ranges.
func (j *Job) Validate() error {
	switch {
	case j.Instrument == "":
		return fmt.Errorf("instrument is required")
	case j.Source == "":
		return fmt.Errorf("source is required")
	case j.Output == "":
		return fmt.Errorf("output is required")
	}
	if _, err := writer.ParsePolicy(j.Overwrite); err != nil {
		return err
	}

	switch j.Compression.Type {
	case "", "none":
		if j.Compression.Level != 0 {
			return fmt.Errorf("compression level set without compression type")
		}
	case "gzip":
		if j.Compression.Level < 1 || j.Compression.Level > 9 {
			return fmt.Errorf("gzip level %d out of range 1-9", j.Compression.Level)
		}
	default:
		return fmt.Errorf("unknown compression type %q", j.Compression.Type)
	}

	for i, c := range j.Copy {
		if c.From == "" {
			return fmt.Errorf("copy rule %d: from is required", i)
		}
	}
	for i, s := range j.Shapes {
		if s.File == "" || s.Group == "" {
			return fmt.Errorf("shape %d: file and group are required", i)
		}
	}
	for i, u := range j.Users {
		if u.Name == "" {
			return fmt.Errorf("user %d: name is required", i)
		}
	}
	if fe := j.FakeEvents; fe != nil {
		switch {
		case fe.EventsPerPulse <= 0 || fe.Pulses <= 0:
			return fmt.Errorf("fake_events: events_per_pulse and pulses must be positive")
		case fe.FrequencyHz <= 0:
			return fmt.Errorf("fake_events: frequency_hz must be positive")
		case fe.TOFMax <= fe.TOFMin:
			return fmt.Errorf("fake_events: tof_max must exceed tof_min")
		}
	}
	return nil
}

// Policy returns the parsed overwrite policy.
func (j *Job) Policy() writer.OverwritePolicy {
	p, _ := writer.ParsePolicy(j.Overwrite)
	return p
}

// GZIPLevel is the deflate level, 0 when compression is off.
func (j *Job) GZIPLevel() int {
	if j.Compression.Type != "gzip" {
		return 0
	}
	return j.Compression.Level
}
