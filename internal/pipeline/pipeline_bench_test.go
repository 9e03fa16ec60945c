package pipeline

import (
	"context"
	"io"
	"testing"

	"slicepath/pkg/contract"
)

type discardWriter struct{}

func (discardWriter) Write(_ context.Context, _ contract.ArtifactID, r io.Reader) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

// BenchmarkRunDirect 测量 Driver + 指令流式写出的调度开销（桩件几何）。
func BenchmarkRunDirect(b *testing.B) {
	set := Settings{Model: "m.stl", Output: "m.gcode", Flow: FlowDirect, Range: contract.AllSlices}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		comp := Components{
			Mesh: stubMeshReader{n: 500}, Slicer: &stubSlicer{},
			Instructions: &textInstructions{}, Writer: discardWriter{},
			Progress: contract.NopProgress{},
		}
		if err := Run(context.Background(), comp, set, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAdjustToPlate(b *testing.B) {
	for i := 0; i < b.N; i++ {
		in := make([]contract.SliceData, 1000)
		if _, err := AdjustToPlate(in, testMeasure, contract.SliceRange{First: 100, Last: 899}, PlateBoundsStrict, nil); err != nil {
			b.Fatal(err)
		}
	}
}
