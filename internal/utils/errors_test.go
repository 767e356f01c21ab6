package utils_test

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/nexus/internal/idf"
	"github.com/scigolib/nexus/internal/source"
	"github.com/scigolib/nexus/internal/tree"
	"github.com/scigolib/nexus/internal/utils"
)

func TestWrap_NilCauseStaysNil(t *testing.T) {
	assert.NoError(t, utils.WrapError("mapping detector_1", nil))
	assert.NoError(t, utils.WrapErrorf(nil, "attribute %s of %s", "units", "/entry/data"))
}

func TestWrapErrorf_Context(t *testing.T) {
	cause := errors.New("link target missing")
	tests := []struct {
		format string
		args   []any
		want   string
	}{
		{"linking %s to %s", []any{"/a/b", "/c"}, "linking /a/b to /c: link target missing"},
		{"dataset %q", []any{"x_pixel_offset"}, `dataset "x_pixel_offset": link target missing`},
		{"no verbs", nil, "no verbs: link target missing"},
	}
	for _, tt := range tests {
		err := utils.WrapErrorf(cause, tt.format, tt.args...)
		require.Error(t, err)
		assert.Equal(t, tt.want, err.Error())
		assert.ErrorIs(t, err, cause)
	}
}

func TestStageError_ReachesParseError(t *testing.T) {
	_, cause := idf.Parse(strings.NewReader(`<instrument xmlns="urn:other"/>`))
	require.Error(t, cause)

	err := utils.WrapErrorf(utils.WrapError("reading instrument", cause), "job %d", 3)

	var pe *idf.ParseError
	require.ErrorAs(t, err, &pe)
	var stage *utils.StageError
	require.ErrorAs(t, err, &stage)
	assert.Equal(t, "job 3", stage.Context, "the outermost stage is found first")
	assert.True(t, strings.HasPrefix(err.Error(), "job 3: reading instrument: "))
}

func TestStageError_ReachesIOError(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.nxs")
	_, cause := source.Open(missing)
	require.Error(t, cause)

	err := utils.WrapError("opening legacy file", cause)
	var ioe *source.IOError
	require.ErrorAs(t, err, &ioe)
	assert.Equal(t, missing, ioe.Path)
	assert.Equal(t, "open", ioe.Op)
}

func TestStageError_FromDatasetValidation(t *testing.T) {
	d := &tree.Dataset{
		Name: "huge",
		Type: tree.Float64,
		Dims: []uint64{math.MaxUint64, 2},
		Data: []float64{},
	}
	err := d.Validate()
	var stage *utils.StageError
	require.ErrorAs(t, err, &stage)
	assert.Equal(t, `dataset "huge"`, stage.Context)
	assert.Contains(t, stage.Cause.Error(), "overflow")
}
