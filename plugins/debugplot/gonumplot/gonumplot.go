// Package gonumplot 将单层切片几何渲染为 PNG，供调试几何目录使用。
package gonumplot

import (
	"bytes"
	"context"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"slicepath/pkg/contract"
)

// Options: 渲染选项。
type Options struct {
	// SizeInch: 图像边长（英寸），默认 6。
	SizeInch float64 `json:"size_inch"`
	// Format: png|svg|pdf，默认 png。
	Format string `json:"format"`
}

// Plotter: 按层输出图像到给定 Writer。
type Plotter struct {
	out    contract.Writer
	size   vg.Length
	format string
}

// New 创建渲染器。
func New(opts *Options, out contract.Writer) (*Plotter, error) {
	if out == nil {
		return nil, fmt.Errorf("%w: plot writer is required", contract.ErrInvalidInput)
	}
	p := &Plotter{out: out, size: 6 * vg.Inch, format: "png"}
	if opts != nil {
		if opts.SizeInch < 0 {
			return nil, fmt.Errorf("%w: size_inch must be >= 0", contract.ErrInvalidInput)
		}
		if opts.SizeInch > 0 {
			p.size = vg.Length(opts.SizeInch) * vg.Inch
		}
		switch opts.Format {
		case "":
		case "png", "svg", "pdf":
			p.format = opts.Format
		default:
			return nil, fmt.Errorf("%w: unsupported plot format %q", contract.ErrInvalidInput, opts.Format)
		}
	}
	return p, nil
}

var (
	boundaryColor = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	insetColor    = color.RGBA{R: 30, G: 100, B: 220, A: 255}
	infillColor   = color.RGBA{R: 220, G: 90, B: 30, A: 255}
)

// ArtifactName 返回第 index 层的图像名。
func (p *Plotter) ArtifactName(index int) contract.ArtifactID {
	return contract.ArtifactID(fmt.Sprintf("layer_%d.%s", index, p.format))
}

// PlotLayer 渲染一层：边界（黑）、内缩壳（蓝）、填充（橙）。
func (p *Plotter) PlotLayer(ctx context.Context, index int, z float64, es contract.ExtruderSlice) error {
	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("slice %d  z=%.3f", index, z)
	pl.X.Label.Text = "X (mm)"
	pl.Y.Label.Text = "Y (mm)"

	if err := addSeries(pl, "boundary", es.Boundary, true, boundaryColor, 1.2); err != nil {
		return err
	}
	for k, shell := range es.InsetLoops {
		name := ""
		if k == 0 {
			name = "insets"
		}
		if err := addSeries(pl, name, shell, true, insetColor, 0.8); err != nil {
			return err
		}
	}
	if err := addSeries(pl, "infill", es.Infills, false, infillColor, 0.5); err != nil {
		return err
	}

	wt, err := pl.WriterTo(p.size, p.size, p.format)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return err
	}
	return p.out.Write(ctx, p.ArtifactName(index), &buf)
}

func addSeries(pl *plot.Plot, name string, polys contract.Polygons, closed bool, c color.Color, width float64) error {
	first := true
	for _, poly := range polys {
		if len(poly) < 2 {
			continue
		}
		pts := make(plotter.XYs, 0, len(poly)+1)
		for _, v := range poly {
			pts = append(pts, plotter.XY{X: v.X, Y: v.Y})
		}
		if closed {
			pts = append(pts, plotter.XY{X: poly[0].X, Y: poly[0].Y})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plot %s: %w", name, err)
		}
		line.Color = c
		line.Width = vg.Points(width)
		pl.Add(line)
		if first && name != "" {
			pl.Legend.Add(name, line)
			first = false
		}
	}
	return nil
}
