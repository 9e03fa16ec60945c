// Package gcode 实现 InstructionWriter：将切片格式化为 G-code 文本。
package gcode

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"gonum.org/v1/gonum/spatial/r2"

	"slicepath/pkg/contract"
)

// Options: G-code 输出选项。
type Options struct {
	// FeedRate: 挤出移动速度（mm/min），默认 1800。
	FeedRate float64 `json:"feed_rate"`
	// TravelRate: 空走速度（mm/min），默认 4800。
	TravelRate float64 `json:"travel_rate"`
	// ExtrusionPerMM: 每毫米路径的挤出量（E 轴单位），默认 0.05。
	ExtrusionPerMM float64 `json:"extrusion_per_mm"`
	// StartGcode/EndGcode: 头部之后/结尾原样输出的指令行。
	StartGcode []string `json:"start_gcode"`
	EndGcode   []string `json:"end_gcode"`
	// Decimals: 坐标小数位，默认 3。
	Decimals int `json:"decimals"`
}

// Writer: G-code 格式化器。
// 有状态（累计挤出量、当前位置）：一个实例对应一个输出目标，按序调用。
type Writer struct {
	feed, travel, perMM float64
	start, end          []string
	prec                int

	e   float64
	pos r2.Vec
	z   float64
}

// New 创建格式化器。
func New(opts *Options) (*Writer, error) {
	w := &Writer{feed: 1800, travel: 4800, perMM: 0.05, prec: 3}
	if opts == nil {
		return w, nil
	}
	if opts.FeedRate < 0 || opts.TravelRate < 0 || opts.ExtrusionPerMM < 0 || opts.Decimals < 0 {
		return nil, fmt.Errorf("%w: gcode rates must be >= 0", contract.ErrInvalidInput)
	}
	if opts.FeedRate > 0 {
		w.feed = opts.FeedRate
	}
	if opts.TravelRate > 0 {
		w.travel = opts.TravelRate
	}
	if opts.ExtrusionPerMM > 0 {
		w.perMM = opts.ExtrusionPerMM
	}
	if opts.Decimals > 0 {
		w.prec = opts.Decimals
	}
	w.start = append([]string(nil), opts.StartGcode...)
	w.end = append([]string(nil), opts.EndGcode...)
	return w, nil
}

var (
	_ contract.InstructionWriter   = (*Writer)(nil)
	_ contract.InstructionFinisher = (*Writer)(nil)
)

func (w *Writer) num(v float64) string { return strconv.FormatFloat(v, 'f', w.prec, 64) }

// WriteHeader 输出头部并重置状态。
func (w *Writer) WriteHeader(out io.Writer, modelSource string) error {
	w.e, w.pos, w.z = 0, r2.Vec{}, 0
	bw := bufio.NewWriter(out)
	fmt.Fprintf(bw, "; generated by slicepath\n; model: %s\n", modelSource)
	fmt.Fprintln(bw, "G21 ; millimetres")
	fmt.Fprintln(bw, "G90 ; absolute positioning")
	fmt.Fprintln(bw, "M82 ; absolute extrusion")
	fmt.Fprintln(bw, "G92 E0")
	for _, l := range w.start {
		fmt.Fprintln(bw, l)
	}
	return bw.Flush()
}

// WriteSlice 输出一层：有内缩壳时打印壳（由外向内），否则打印边界；随后打印填充。
func (w *Writer) WriteSlice(out io.Writer, s *contract.SliceData) error {
	if s == nil {
		return contract.ErrInvalidInput
	}
	bw := bufio.NewWriter(out)
	fmt.Fprintf(bw, "; slice %d z=%s\n", s.Index, w.num(s.Height))
	if len(s.ExtruderSlices) == 0 {
		fmt.Fprintln(bw, "; empty")
		return bw.Flush()
	}
	w.z = s.Height
	for id, es := range s.ExtruderSlices {
		if len(s.ExtruderSlices) > 1 {
			fmt.Fprintf(bw, "T%d\n", id)
		}
		if len(es.InsetLoops) > 0 {
			for k, shell := range es.InsetLoops {
				fmt.Fprintf(bw, "; shell %d\n", k)
				for _, loop := range shell {
					w.path(bw, loop, true)
				}
			}
		} else {
			fmt.Fprintln(bw, "; boundary")
			for _, loop := range es.Boundary {
				w.path(bw, loop, true)
			}
		}
		if len(es.Infills) > 0 {
			fmt.Fprintln(bw, "; infill")
			for _, line := range es.Infills {
				w.path(bw, line, false)
			}
		}
	}
	return bw.Flush()
}

// WriteFooter 输出结尾指令。
func (w *Writer) WriteFooter(out io.Writer) error {
	bw := bufio.NewWriter(out)
	fmt.Fprintf(bw, "; end, filament %s\n", w.num(w.e))
	for _, l := range w.end {
		fmt.Fprintln(bw, l)
	}
	return bw.Flush()
}

func (w *Writer) path(bw *bufio.Writer, p contract.Polygon, closed bool) {
	if len(p) < 2 {
		return
	}
	fmt.Fprintf(bw, "G0 F%s X%s Y%s Z%s\n", w.num(w.travel), w.num(p[0].X), w.num(p[0].Y), w.num(w.z))
	w.pos = p[0]
	for _, v := range p[1:] {
		w.extrude(bw, v)
	}
	if closed {
		w.extrude(bw, p[0])
	}
}

func (w *Writer) extrude(bw *bufio.Writer, v r2.Vec) {
	w.e += r2.Norm(r2.Sub(v, w.pos)) * w.perMM
	w.pos = v
	fmt.Fprintf(bw, "G1 F%s X%s Y%s E%s\n", w.num(w.feed), w.num(v.X), w.num(v.Y), strconv.FormatFloat(w.e, 'f', 5, 64))
}

// Filament 返回当前累计挤出量。
func (w *Writer) Filament() float64 { return w.e }
