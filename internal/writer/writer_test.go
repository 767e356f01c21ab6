package writer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/nexus/internal/source"
	"github.com/scigolib/nexus/internal/tree"
)

func sampleTree(t *testing.T) *tree.Group {
	t.Helper()
	root := tree.NewGroup("", "")
	entry := tree.NewGroup("raw_data_1", "NXentry")
	require.NoError(t, root.Add(entry))

	det := tree.NewGroup("detector_1", "NXdetector")
	require.NoError(t, entry.Add(det))
	require.NoError(t, det.Add(tree.New("detector_number", []int32{1, 2, 3, 4}, 2, 2)))
	require.NoError(t, det.Add(tree.New("x_pixel_offset", []float64{-0.1, 0.1}).SetAttr("units", "m")))
	require.NoError(t, det.Add(tree.Scalar("local_name", "bank one")))
	require.NoError(t, entry.Add(tree.New("features", []uint64{0xB051F43BC680C13B})))
	require.NoError(t, entry.Add(&tree.Link{Name: "ids", Target: "/raw_data_1/detector_1/detector_number"}))
	return root
}

func TestWriteFile_RoundTrip(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.nxs")
	require.NoError(t, WriteFile(context.Background(), dst, sampleTree(t)))

	_, err := os.Stat(dst + PartialSuffix)
	assert.True(t, os.IsNotExist(err), "partial file must be gone")

	src, err := source.Open(dst)
	require.NoError(t, err)
	defer src.Close()

	entry, ok := src.Get("/raw_data_1")
	require.True(t, ok)
	assert.Contains(t, entry.Attrs, tree.Attribute{Name: "NX_class", Value: "NXentry"})

	ids, err := src.Load("/raw_data_1/detector_1/detector_number")
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 2}, ids.Dims)
	assert.Equal(t, []int32{1, 2, 3, 4}, ids.Data)

	offsets, err := src.Load("/raw_data_1/detector_1/x_pixel_offset")
	require.NoError(t, err)
	units, _ := offsets.Attr("units")
	assert.Equal(t, "m", units)

	name, err := src.Load("/raw_data_1/detector_1/local_name")
	require.NoError(t, err)
	assert.Equal(t, []string{"bank one"}, name.Data)

	linked, ok := src.Get("/raw_data_1/ids")
	require.True(t, ok)
	assert.Equal(t, source.KindDataset, linked.Kind)
}

func TestWriteFile_Deterministic(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.nxs")
	b := filepath.Join(dir, "b.nxs")
	require.NoError(t, WriteFile(context.Background(), a, sampleTree(t), WithGZIP(4, 2)))
	require.NoError(t, WriteFile(context.Background(), b, sampleTree(t), WithGZIP(4, 2)))

	first, err := os.ReadFile(a)
	require.NoError(t, err)
	second, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWriteFile_Compressed(t *testing.T) {
	root := tree.NewGroup("", "")
	values := make([]float64, 400)
	for i := range values {
		values[i] = float64(i % 7)
	}
	require.NoError(t, root.AddAt("data", tree.New("signal", values, 20, 20)))

	dst := filepath.Join(t.TempDir(), "gz.nxs")
	require.NoError(t, WriteFile(context.Background(), dst, root, WithGZIP(6, 100)))

	src, err := source.Open(dst)
	require.NoError(t, err)
	defer src.Close()
	got, err := src.Load("/data/signal")
	require.NoError(t, err)
	assert.Equal(t, values, got.Data)
	assert.Equal(t, "chunked", func() string { n, _ := src.Get("/data/signal"); return n.Info.Layout }())
}

func TestWriteFile_NoOverwrite(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "exists.nxs")
	require.NoError(t, os.WriteFile(dst, []byte("keep me"), 0o600))

	err := WriteFile(context.Background(), dst, sampleTree(t), WithPolicy(NoOverwrite))
	require.ErrorIs(t, err, ErrOutputExists)

	kept, readErr := os.ReadFile(dst)
	require.NoError(t, readErr)
	assert.Equal(t, "keep me", string(kept))

	require.NoError(t, WriteFile(context.Background(), dst, sampleTree(t), WithPolicy(Overwrite)))
}

func TestWriteFile_NoOverwriteDestinationAppearsDuringWrite(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "late.nxs")
	createDst := func(c *config) {
		c.beforeCommit = func() {
			require.NoError(t, os.WriteFile(dst, []byte("written meanwhile"), 0o600))
		}
	}

	err := WriteFile(context.Background(), dst, sampleTree(t), WithPolicy(NoOverwrite), createDst)
	require.ErrorIs(t, err, ErrOutputExists)

	kept, readErr := os.ReadFile(dst)
	require.NoError(t, readErr)
	assert.Equal(t, "written meanwhile", string(kept))
	_, statErr := os.Stat(dst + PartialSuffix)
	assert.True(t, os.IsNotExist(statErr), "partial file must be removed")
}

func TestWriteFile_NoOverwriteFreshDestination(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "fresh.nxs")
	require.NoError(t, WriteFile(context.Background(), dst, sampleTree(t), WithPolicy(NoOverwrite)))

	_, err := os.Stat(dst + PartialSuffix)
	assert.True(t, os.IsNotExist(err), "partial name must not remain")
	src, err := source.Open(dst)
	require.NoError(t, err)
	defer src.Close()
	_, ok := src.Get("/raw_data_1/detector_1/detector_number")
	assert.True(t, ok)
}

func TestWriteFile_ReplacesLeftoverPartial(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.nxs")
	require.NoError(t, os.WriteFile(dst+PartialSuffix, []byte("from a crashed run"), 0o600))

	require.NoError(t, WriteFile(context.Background(), dst, sampleTree(t)))
	_, err := os.Stat(dst + PartialSuffix)
	assert.True(t, os.IsNotExist(err))
	src, err := source.Open(dst)
	require.NoError(t, err)
	require.NoError(t, src.Close())
}

func TestWriteFile_FailuresLeaveNoFile(t *testing.T) {
	broken := tree.NewGroup("", "")
	require.NoError(t, broken.Add(&tree.Dataset{Name: "bad", Type: tree.Int32, Dims: []uint64{3}, Data: []int32{1}}))

	dangling := tree.NewGroup("", "")
	require.NoError(t, dangling.Add(&tree.Link{Name: "l", Target: "/nowhere"}))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		root *tree.Group
	}{
		{name: "shape mismatch", ctx: context.Background(), root: broken},
		{name: "dangling link", ctx: context.Background(), root: dangling},
		{name: "cancelled", ctx: cancelled, root: sampleTree(t)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := filepath.Join(t.TempDir(), "out.nxs")
			require.Error(t, WriteFile(tt.ctx, dst, tt.root))
			_, err := os.Stat(dst)
			assert.True(t, os.IsNotExist(err))
			_, err = os.Stat(dst + PartialSuffix)
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Overwrite, p)
	p, err = ParsePolicy("no-overwrite")
	require.NoError(t, err)
	assert.Equal(t, NoOverwrite, p)
	assert.Equal(t, "no-overwrite", p.String())
	_, err = ParsePolicy("sometimes")
	require.Error(t, err)
}

func TestAttrValue(t *testing.T) {
	v, ok := attrValue([]uint64{1, 2})
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2}, v)

	v, ok = attrValue([]string{"only"})
	require.True(t, ok)
	assert.Equal(t, "only", v)

	_, ok = attrValue([]string{"a", "b"})
	assert.False(t, ok)
	_, ok = attrValue([]float64{})
	assert.False(t, ok)
	_, ok = attrValue(struct{}{})
	assert.False(t, ok)
}
