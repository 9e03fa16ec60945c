package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/spatial/r2"

	"slicepath/internal/diag"
	"slicepath/pkg/contract"
)

// 管道写端由独立 goroutine 驱动，每个用例结束时必须已回收。
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// 通用桩件 ----------------------------------------------------

var testMeasure = contract.LayerMeasure{FirstZ: 0.2, LayerH: 0.3}

// recProgress 按标签记录 Reset 与 Tick。
type recProgress struct {
	mu     sync.Mutex
	labels []string
	totals map[string]int
	ticks  map[string]int
	cur    string
}

func newRecProgress() *recProgress {
	return &recProgress{totals: map[string]int{}, ticks: map[string]int{}}
}

func (p *recProgress) Reset(total int, label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.labels = append(p.labels, label)
	p.totals[label] = total
	p.cur = label
}

func (p *recProgress) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks[p.cur]++
}

// stubDecomposer: n 层；第 i 层轮廓为一条 A.X=i 的线段，便于投影端识别层号。
type stubDecomposer struct {
	n       int
	failAt  string
	measure contract.LayerMeasure
}

func (d *stubDecomposer) stage(p contract.StageParams, label string) error {
	prog := contract.OrNop(p.Progress)
	prog.Reset(d.n, label)
	for i := 0; i < d.n; i++ {
		prog.Tick()
	}
	if d.failAt == label {
		return fmt.Errorf("%s: boom", label)
	}
	return nil
}

func (d *stubDecomposer) Outlines(_ context.Context, _ string, p contract.StageParams) (contract.LayerMeasure, contract.Grid, []contract.SegmentTable, error) {
	if err := d.stage(p, "outlines"); err != nil {
		return contract.LayerMeasure{}, contract.Grid{}, nil, err
	}
	out := make([]contract.SegmentTable, d.n)
	for i := range out {
		out[i] = contract.SegmentTable{{{A: r2.Vec{X: float64(i)}, B: r2.Vec{X: float64(i), Y: 1}}}}
	}
	g := contract.Grid{XValues: []float64{0, 1}, YValues: []float64{0, 1}}
	if d.failAt == "grid" {
		g.XValues = []float64{1, 0}
	}
	return d.measure, g, out, nil
}

func (d *stubDecomposer) Insets(_ context.Context, outlines []contract.SegmentTable, p contract.StageParams) ([]contract.Insets, error) {
	if err := d.stage(p, "insets"); err != nil {
		return nil, err
	}
	return make([]contract.Insets, len(outlines)), nil
}

func (d *stubDecomposer) FlatSurfaces(_ context.Context, insets []contract.Insets, _ contract.Grid, p contract.StageParams) ([]contract.GridRanges, error) {
	if err := d.stage(p, "flat surfaces"); err != nil {
		return nil, err
	}
	return make([]contract.GridRanges, len(insets)), nil
}

func (d *stubDecomposer) Roofing(_ context.Context, flats []contract.GridRanges, _ contract.Grid, p contract.StageParams) ([]contract.GridRanges, error) {
	if err := d.stage(p, "roofing"); err != nil {
		return nil, err
	}
	return make([]contract.GridRanges, len(flats)), nil
}

func (d *stubDecomposer) Infills(_ context.Context, flats []contract.GridRanges, _ contract.Grid, _ []contract.GridRanges, p contract.StageParams) ([]contract.GridRanges, []contract.GridRanges, error) {
	if err := d.stage(p, "infills"); err != nil {
		return nil, nil, err
	}
	// 与层数不等长的表应被骨架校验拒绝
	if d.failAt == "short" {
		return make([]contract.GridRanges, len(flats)), make([]contract.GridRanges, len(flats)-1), nil
	}
	return make([]contract.GridRanges, len(flats)), make([]contract.GridRanges, len(flats)), nil
}

// stubProjector 记录每次填充投影的方向。
type stubProjector struct {
	directions []bool
}

func (p *stubProjector) Outlines(seg contract.SegmentTable) (contract.Polygons, error) {
	return contract.Polygons{{seg[0][0].A, seg[0][0].B}}, nil
}

func (p *stubProjector) Insets(contract.Insets) ([]contract.Polygons, error) {
	return []contract.Polygons{{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}}}, nil
}

func (p *stubProjector) Infills(_ contract.GridRanges, _ contract.Grid, direction bool) (contract.Polygons, error) {
	p.directions = append(p.directions, direction)
	return contract.Polygons{{{X: 0, Y: 0}, {X: 1, Y: 1}}}, nil
}

type stubMeshReader struct {
	n   int
	err error
}

func (r stubMeshReader) Read(context.Context, string) (*contract.Mesh, error) {
	if r.err != nil {
		return nil, r.err
	}
	table := make([]contract.TriangleIndices, r.n)
	for i := range table {
		table[i] = contract.TriangleIndices{i}
	}
	return &contract.Mesh{SliceTable: table, Measure: testMeasure}, nil
}

// stubSlicer 记录收到的作业，并写入一条可识别的边界。
type stubSlicer struct {
	jobs   []contract.LayerJob
	failAt int
}

func (s *stubSlicer) Slice(_ context.Context, _ *contract.Mesh, job contract.LayerJob, out *contract.SliceData) error {
	if s.failAt > 0 && job.SliceIndex == s.failAt {
		return errors.New("slicer boom")
	}
	s.jobs = append(s.jobs, job)
	for len(out.ExtruderSlices) <= job.ExtruderID {
		out.ExtruderSlices = append(out.ExtruderSlices, contract.ExtruderSlice{})
	}
	out.ExtruderSlices[job.ExtruderID].Boundary = contract.Polygons{{{X: float64(job.SliceIndex)}, {X: 1}, {Y: 1}}}
	return nil
}

// textInstructions: 一行 header，每层一行，可选 footer。
type textInstructions struct {
	failAt  int
	footers int
}

func (t *textInstructions) WriteHeader(w io.Writer, label string) error {
	_, err := fmt.Fprintf(w, "H %s\n", label)
	return err
}

func (t *textInstructions) WriteSlice(w io.Writer, s *contract.SliceData) error {
	if t.failAt > 0 && s.Index == t.failAt {
		return errors.New("format boom")
	}
	_, err := fmt.Fprintf(w, "S %d %.2f\n", s.Index, s.Height)
	return err
}

func (t *textInstructions) WriteFooter(w io.Writer) error {
	t.footers++
	_, err := io.WriteString(w, "F\n")
	return err
}

// memWriter: 读尽输入后按 id 保存；读错误时不保存（全有或全无）。
type memWriter struct {
	mu    sync.Mutex
	files map[contract.ArtifactID]string
	err   error
}

func newMemWriter() *memWriter { return &memWriter{files: map[contract.ArtifactID]string{}} }

func (w *memWriter) Write(_ context.Context, id contract.ArtifactID, r io.Reader) error {
	if w.err != nil {
		return w.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[id] = string(b)
	return nil
}

func lines(s string) []string { return strings.Split(strings.TrimSpace(s), "\n") }

// Run 级用例 ----------------------------------------------------

func skeletonComponents(n int, w contract.Writer, prog contract.Progress) Components {
	return Components{
		Decomposer:   &stubDecomposer{n: n, measure: testMeasure},
		Projector:    &stubProjector{},
		Instructions: &textInstructions{},
		Writer:       w,
		Progress:     prog,
	}
}

// 场景 1：全区间，10 层 → 1 个 header + 10 个块，生产循环 10 次 Tick。
func TestRunSkeletonAllSlices(t *testing.T) {
	w := newMemWriter()
	prog := newRecProgress()
	set := Settings{Model: "cube.stl", Output: "cube.gcode", Flow: FlowSkeleton, Range: contract.AllSlices}
	require.NoError(t, Run(context.Background(), skeletonComponents(10, w, prog), set, nil))

	out := lines(w.files["cube.gcode"])
	require.Len(t, out, 12)
	assert.Equal(t, "H cube.stl", out[0])
	assert.Equal(t, "F", out[11])
	assert.Equal(t, 10, prog.ticks["Path generation"])
	assert.Equal(t, 10, prog.totals["Path generation"])
	assert.Equal(t, 10, prog.ticks["Gcoding"])
	assert.Equal(t, []string{"outlines", "insets", "flat surfaces", "roofing", "infills", "Path generation", "Gcoding"}, prog.labels)
}

// direct + 贴板 + 转储：输出序列自 0 重新编号。
func TestRunDirectWithPlateAndDump(t *testing.T) {
	w := newMemWriter()
	dump := newMemWriter()
	comp := Components{
		Mesh: stubMeshReader{n: 10}, Slicer: &stubSlicer{},
		Instructions: &textInstructions{}, Writer: w, Dump: dump,
		Progress: newRecProgress(),
	}
	set := Settings{
		Model: "m.stl", Output: "m.gcode", Flow: FlowDirect,
		Range: contract.SliceRange{First: 2, Last: 7},
		Plate: PlateSettings{Adjust: true, Bounds: PlateBoundsStrict},
	}
	require.NoError(t, Run(context.Background(), comp, set, nil))

	out := lines(w.files["m.gcode"])
	require.Len(t, out, 1+6+1)
	assert.Equal(t, "S 0 0.20", out[1])
	assert.Equal(t, "S 5 1.70", out[6])
	require.Len(t, dump.files, 6)
	s0, err := contract.DecodeSlice([]byte(dump.files["slice_0.json"]))
	require.NoError(t, err)
	assert.Equal(t, 0, s0.Index)
	// 原第 2 层的几何随之保留
	assert.Equal(t, 2.0, s0.ExtruderSlices[0].Boundary[0][0].X)
}

// 无进度注入时退化为日志进度；阶段事件带 comp。
func TestRunLogsStagesAndFallbackProgress(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := diag.NewLoggerCore("cid", core)
	w := newMemWriter()
	set := Settings{Model: "cube.stl", Output: "o.gcode", Flow: FlowSkeleton, Range: contract.AllSlices}
	require.NoError(t, Run(context.Background(), skeletonComponents(3, w, nil), set, logger))

	comps := map[string]int{}
	for _, e := range logs.All() {
		comps[e.ContextMap()["comp"].(string)]++
	}
	assert.Equal(t, 2, comps["driver"], "driver start+finish")
	assert.Equal(t, 2, comps["instructions"])
	assert.Positive(t, comps["progress"], "日志进度应被使用")
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()
	base := Settings{Model: "m", Output: "o", Flow: FlowSkeleton, Range: contract.AllSlices}

	t.Run("sanity", func(t *testing.T) {
		err := Run(ctx, Components{}, base, nil)
		require.ErrorIs(t, err, contract.ErrInvalidInput)
		s := base
		s.Model = ""
		require.ErrorIs(t, Run(ctx, skeletonComponents(3, newMemWriter(), nil), s, nil), contract.ErrInvalidInput)
		s = base
		s.Flow = "other"
		require.ErrorIs(t, Run(ctx, skeletonComponents(3, newMemWriter(), nil), s, nil), contract.ErrInvalidInput)
		s = base
		s.Flow = FlowDirect
		require.ErrorIs(t, Run(ctx, skeletonComponents(3, newMemWriter(), nil), s, nil), contract.ErrInvalidInput)
	})

	t.Run("range", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		s := base
		s.Range = contract.SliceRange{First: 4, Last: 12}
		err := Run(ctx, skeletonComponents(10, newMemWriter(), nil), s, diag.NewLoggerCore("", core))
		require.ErrorIs(t, err, contract.ErrRangeInvalid)
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "range", logs.All()[0].ContextMap()["code"])
	})

	t.Run("plate literal default", func(t *testing.T) {
		comp := Components{Mesh: stubMeshReader{n: 5}, Slicer: &stubSlicer{}, Instructions: &textInstructions{}, Writer: newMemWriter()}
		s := base
		s.Flow = FlowDirect
		s.Plate = PlateSettings{Adjust: true, Bounds: PlateBoundsLiteral}
		require.ErrorIs(t, Run(ctx, comp, s, nil), contract.ErrRangeInvalid)
	})

	t.Run("mesh", func(t *testing.T) {
		comp := Components{Mesh: stubMeshReader{err: contract.ErrMeshInvalid}, Slicer: &stubSlicer{}, Instructions: &textInstructions{}, Writer: newMemWriter()}
		s := base
		s.Flow = FlowDirect
		require.ErrorIs(t, Run(ctx, comp, s, nil), contract.ErrMeshInvalid)
	})

	t.Run("dump", func(t *testing.T) {
		w := newMemWriter()
		comp := skeletonComponents(3, w, nil)
		comp.Dump = &memWriter{err: errors.New("disk full")}
		require.Error(t, Run(ctx, comp, base, nil))
		assert.Empty(t, w.files, "转储失败时不写指令")
	})
}

func TestParseFlowAndBounds(t *testing.T) {
	f, err := ParseFlow("")
	require.NoError(t, err)
	assert.Equal(t, FlowSkeleton, f)
	f, err = ParseFlow(" direct ")
	require.NoError(t, err)
	assert.Equal(t, FlowDirect, f)
	_, err = ParseFlow("x")
	require.ErrorIs(t, err, contract.ErrInvalidInput)

	b, err := ParsePlateBounds("")
	require.NoError(t, err)
	assert.Equal(t, PlateBoundsStrict, b)
	b, err = ParsePlateBounds("literal")
	require.NoError(t, err)
	assert.Equal(t, PlateBoundsLiteral, b)
	_, err = ParsePlateBounds("loose")
	require.ErrorIs(t, err, contract.ErrInvalidInput)
}
