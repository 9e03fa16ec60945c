package contract

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

// TestNormalizeArtifactID 验证路径规范化逻辑。
func TestNormalizeArtifactID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"系统分隔符", filepath.Join("a", "b", "c"), "a/b/c"},
		{"清理父目录", "./x/../y", "y"},
		{"空串", "", "."},
		{"Windows路径", "out\\debug\\slice_0.json", "out/debug/slice_0.json"},
		{"清理多余斜杠", "path//to///part.gcode", "path/to/part.gcode"},
		{"保留逃逸", "a\\..\\..\\d", "../d"},
		{"绝对路径", "/tmp/../var/out.gcode", "/var/out.gcode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ArtifactID(tt.expected), NormalizeArtifactID(tt.input))
		})
	}
}

func TestLayerMeasure_RoundTrip(t *testing.T) {
	m := LayerMeasure{FirstZ: 0.1, LayerH: 0.2}
	for i := 0; i < 50; i++ {
		z := m.SliceIndexToHeight(i)
		require.Equal(t, i, m.HeightToSliceIndex(z), "层 %d 高度 %g 反算不一致", i, z)
	}
	assert.Equal(t, -1, m.HeightToSliceIndex(0.0))
	assert.Equal(t, -1, LayerMeasure{}.HeightToSliceIndex(1))
	// 高度随序号单调
	for i := 1; i < 10; i++ {
		assert.Greater(t, m.SliceIndexToHeight(i), m.SliceIndexToHeight(i-1))
	}
}

func TestSliceData_UpdatePosition(t *testing.T) {
	s := SliceData{Height: 5, Index: 9, ExtruderSlices: []ExtruderSlice{{}}}
	s.UpdatePosition(0.3, 0)
	assert.Equal(t, 0.3, s.Height)
	assert.Equal(t, 0, s.Index)
	assert.Len(t, s.ExtruderSlices, 1, "几何不应被改动")
}

func TestValidateSequence(t *testing.T) {
	ok := []SliceData{{Height: 0.2, Index: 0}, {Height: 0.4, Index: 1}, {Height: 0.4, Index: 2}}
	require.NoError(t, ValidateSequence(ok))

	require.ErrorIs(t, ValidateSequence(nil), ErrInvalidInput)

	gap := []SliceData{{Height: 0.2, Index: 0}, {Height: 0.4, Index: 2}}
	require.ErrorIs(t, ValidateSequence(gap), ErrInvariantViolation)

	down := []SliceData{{Height: 0.4, Index: 0}, {Height: 0.2, Index: 1}}
	require.ErrorIs(t, ValidateSequence(down), ErrInvariantViolation)
	require.ErrorIs(t, ValidateHeights(down), ErrInvariantViolation)
	require.NoError(t, ValidateHeights(nil))
}

func TestSkeletonValidate(t *testing.T) {
	var nilSk *Skeleton
	require.ErrorIs(t, nilSk.Validate(), ErrInvalidInput)
	assert.Equal(t, 0, nilSk.SliceCount())

	sk := &Skeleton{
		Outlines:     make([]SegmentTable, 3),
		Insets:       make([]Insets, 3),
		FlatSurfaces: make([]GridRanges, 3),
		Roofings:     make([]GridRanges, 3),
		Floorings:    make([]GridRanges, 3),
		Infills:      make([]GridRanges, 3),
	}
	require.NoError(t, sk.Validate())
	assert.Equal(t, 3, sk.SliceCount())

	sk.Floorings = sk.Floorings[:2]
	err := sk.Validate()
	require.ErrorIs(t, err, ErrInvariantViolation)
	assert.Contains(t, err.Error(), "floorings")

	require.ErrorIs(t, (&Skeleton{}).Validate(), ErrInvalidInput)

	// 表对齐但网格坐标非升序
	sk.Floorings = make([]GridRanges, 3)
	sk.Grid = Grid{XValues: []float64{0, 2, 1}}
	err = sk.Validate()
	require.ErrorIs(t, err, ErrInvariantViolation)
	assert.Contains(t, err.Error(), "grid")
}

func TestGridValidate(t *testing.T) {
	require.NoError(t, Grid{XValues: []float64{0, 1, 2}, YValues: []float64{-1, 0}}.Validate())
	require.Error(t, Grid{XValues: []float64{0, 0}}.Validate())
	require.Error(t, Grid{YValues: []float64{2, 1}}.Validate())
}

func TestSliceCodec_RoundTrip(t *testing.T) {
	sq := Polygon{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	in := SliceData{
		Height: 0.35,
		Index:  7,
		ExtruderSlices: []ExtruderSlice{{
			Boundary:   Polygons{sq},
			InsetLoops: []Polygons{{sq}, {Polygon{{X: 1.5, Y: 1.5}, {X: 8.5, Y: 1.5}, {X: 8.5, Y: 8.5}}}},
			Infills:    Polygons{{{X: 2, Y: 2}, {X: 8, Y: 2}}, {{X: 8, Y: 3}, {X: 2, Y: 3}}},
		}},
	}
	b, err := EncodeSlice(&in)
	require.NoError(t, err)
	out, err := DecodeSlice(b)
	require.NoError(t, err)
	if d := cmp.Diff(in, out); d != "" {
		t.Fatalf("往返不一致 (-want +got):\n%s", d)
	}
	// 规范编码：重新编码逐字节一致
	b2, err := EncodeSlice(&out)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(b2))
	assert.Contains(t, string(b), `"height": 0.35`)
}

func TestSliceCodec_DefaultAndErrors(t *testing.T) {
	b, err := EncodeSlice(&SliceData{})
	require.NoError(t, err)
	out, err := DecodeSlice(b)
	require.NoError(t, err)
	if d := cmp.Diff(SliceData{}, out, cmpopts.EquateEmpty()); d != "" {
		t.Fatalf("默认切片往返不一致:\n%s", d)
	}

	_, err = EncodeSlice(nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = DecodeSlice([]byte(`{"height":1,"index":0,"extruder_slices":[],"extra":1}`))
	require.True(t, errors.Is(err, ErrInvalidInput), "未知字段应拒绝: %v", err)
	_, err = DecodeSlice([]byte(`{`))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestOrNop(t *testing.T) {
	p := OrNop(nil)
	p.Reset(3, "x")
	p.Tick()
	_, isNop := p.(NopProgress)
	assert.True(t, isNop)
	var custom Progress = NopProgress{}
	assert.Equal(t, custom, OrNop(custom))
}

// BenchmarkEncodeSlice 编码基准（单层 200 条填充线）。
func BenchmarkEncodeSlice(b *testing.B) {
	s := SliceData{Height: 1, Index: 1, ExtruderSlices: []ExtruderSlice{{}}}
	for i := 0; i < 200; i++ {
		y := float64(i) * 0.4
		s.ExtruderSlices[0].Infills = append(s.ExtruderSlices[0].Infills, Polygon{r2.Vec{X: 0, Y: y}, r2.Vec{X: 80, Y: y}})
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := EncodeSlice(&s); err != nil {
			b.Fatal(err)
		}
	}
}
