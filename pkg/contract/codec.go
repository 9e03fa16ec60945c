package contract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
)

// 切片的规范 JSON 表示（调试转储用）。
// 点编码为 [x,y]；字段顺序固定，编码结果可逐字节比较。
type sliceDoc struct {
	Height         float64      `json:"height"`
	Index          int          `json:"index"`
	ExtruderSlices []extruderDoc `json:"extruder_slices"`
}

type extruderDoc struct {
	Boundary   [][][2]float64   `json:"boundary"`
	InsetLoops [][][][2]float64 `json:"inset_loops"`
	Infills    [][][2]float64   `json:"infills"`
}

// EncodeSlice 以规范形式编码一层切片（带缩进与结尾换行）。
func EncodeSlice(s *SliceData) ([]byte, error) {
	if s == nil {
		return nil, ErrInvalidInput
	}
	doc := sliceDoc{Height: s.Height, Index: s.Index, ExtruderSlices: make([]extruderDoc, 0, len(s.ExtruderSlices))}
	for _, es := range s.ExtruderSlices {
		ed := extruderDoc{
			Boundary:   encodePolys(es.Boundary),
			InsetLoops: make([][][][2]float64, 0, len(es.InsetLoops)),
			Infills:    encodePolys(es.Infills),
		}
		for _, shell := range es.InsetLoops {
			ed.InsetLoops = append(ed.InsetLoops, encodePolys(shell))
		}
		doc.ExtruderSlices = append(doc.ExtruderSlices, ed)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSlice 为 EncodeSlice 的无损逆操作（未知字段拒绝）。
func DecodeSlice(b []byte) (SliceData, error) {
	var doc sliceDoc
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return SliceData{}, fmt.Errorf("%w: decode slice: %v", ErrInvalidInput, err)
	}
	out := SliceData{Height: doc.Height, Index: doc.Index}
	if len(doc.ExtruderSlices) > 0 {
		out.ExtruderSlices = make([]ExtruderSlice, 0, len(doc.ExtruderSlices))
	}
	for _, ed := range doc.ExtruderSlices {
		es := ExtruderSlice{Boundary: decodePolys(ed.Boundary), Infills: decodePolys(ed.Infills)}
		if len(ed.InsetLoops) > 0 {
			es.InsetLoops = make([]Polygons, 0, len(ed.InsetLoops))
			for _, shell := range ed.InsetLoops {
				es.InsetLoops = append(es.InsetLoops, decodePolys(shell))
			}
		}
		out.ExtruderSlices = append(out.ExtruderSlices, es)
	}
	return out, nil
}

func encodePolys(ps Polygons) [][][2]float64 {
	out := make([][][2]float64, 0, len(ps))
	for _, p := range ps {
		pts := make([][2]float64, 0, len(p))
		for _, v := range p {
			pts = append(pts, [2]float64{v.X, v.Y})
		}
		out = append(out, pts)
	}
	return out
}

func decodePolys(in [][][2]float64) Polygons {
	if len(in) == 0 {
		return nil
	}
	out := make(Polygons, 0, len(in))
	for _, pts := range in {
		p := make(Polygon, 0, len(pts))
		for _, xy := range pts {
			p = append(p, r2.Vec{X: xy[0], Y: xy[1]})
		}
		out = append(out, p)
	}
	return out
}
