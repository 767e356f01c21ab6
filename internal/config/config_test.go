package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/nexus/internal/writer"
)

func writeJob(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_TOML(t *testing.T) {
	p := writeJob(t, "job.toml", `
instrument = "SANS2D_Definition.xml"
source = "/data/SANS2D.nxs"
output = "out/SANS2D_geometry.nxs"
overwrite = "no-overwrite"
verify = true

[compression]
type = "gzip"
level = 4
min_elements = 1000

[[copy]]
from = "/raw_data_1/detector_1"
to = "/raw_data_1/instrument/detector_1"
truncate = 10

[[shapes]]
file = "shapes/monitor.off"
group = "/raw_data_1/instrument/monitor_1"

[[users]]
name = "Jane Doe"
facility_user_id = "jd42"

[fake_events]
events_per_pulse = 10
pulses = 5
frequency_hz = 10.0
tof_min = 10000.0
tof_max = 20000.0
seed = 7
`)
	job, err := Load(p)
	require.NoError(t, err)

	dir := filepath.Dir(p)
	assert.Equal(t, filepath.Join(dir, "SANS2D_Definition.xml"), job.Instrument)
	assert.Equal(t, "/data/SANS2D.nxs", job.Source)
	assert.Equal(t, filepath.Join(dir, "out/SANS2D_geometry.nxs"), job.Output)
	assert.Equal(t, filepath.Join(dir, "shapes/monitor.off"), job.Shapes[0].File)
	assert.Equal(t, writer.NoOverwrite, job.Policy())
	assert.Equal(t, 4, job.GZIPLevel())
	assert.Equal(t, uint64(10), job.Copy[0].Truncate)
	assert.Equal(t, "jd42", job.Users[0].FacilityUserID)
	require.NotNil(t, job.FakeEvents)
	assert.Equal(t, int64(7), job.FakeEvents.Seed)
	assert.True(t, job.Verify)
}

func TestLoad_YAML(t *testing.T) {
	p := writeJob(t, "job.yaml", `
instrument: idf.xml
source: legacy.nxs
output: out.nxs
entry_name: entry
copy:
  - from: /raw_data_1/title
`)
	job, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "entry", job.EntryName)
	assert.Equal(t, writer.Overwrite, job.Policy())
	assert.Equal(t, 0, job.GZIPLevel())
	assert.Nil(t, job.FakeEvents)
	require.Len(t, job.Copy, 1)
	assert.Empty(t, job.Copy[0].To)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantMsg string
	}{
		{name: "extension", file: "job.json", body: "{}", wantMsg: "unsupported extension"},
		{name: "missing source", file: "job.toml", body: `instrument = "a"` + "\n" + `output = "b"`, wantMsg: "source is required"},
		{name: "unknown field", file: "job.yaml", body: "instrument: a\nsource: b\noutput: c\ncolour: red\n", wantMsg: "colour"},
		{name: "bad policy", file: "job.toml", body: "instrument = \"a\"\nsource = \"b\"\noutput = \"c\"\noverwrite = \"maybe\"", wantMsg: "overwrite policy"},
		{name: "gzip level", file: "job.toml", body: "instrument = \"a\"\nsource = \"b\"\noutput = \"c\"\n[compression]\ntype = \"gzip\"\nlevel = 12", wantMsg: "out of range"},
		{
			name:    "fake events",
			file:    "job.yaml",
			body:    "instrument: a\nsource: b\noutput: c\nfake_events:\n  events_per_pulse: 1\n  pulses: 1\n  frequency_hz: 10\n  tof_min: 5\n  tof_max: 5\n",
			wantMsg: "tof_max",
		},
		{name: "shape without group", file: "job.yaml", body: "instrument: a\nsource: b\noutput: c\nshapes:\n  - file: x.off\n", wantMsg: "shape 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeJob(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
