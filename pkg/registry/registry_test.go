package registry

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slicepath/pkg/contract"
)

// TestStrictUnmarshal 验证严格解码逻辑。
func TestStrictUnmarshal(t *testing.T) {
	type opt struct {
		A int `json:"a"`
	}
	var o opt
	require.NoError(t, strictUnmarshal(nil, &o))
	assert.Zero(t, o.A)
	require.NoError(t, strictUnmarshal(json.RawMessage(`{"a":1}`), &o))
	assert.Equal(t, 1, o.A)
	require.Error(t, strictUnmarshal(json.RawMessage(`{"a":1,"b":2}`), &o), "未知字段应报错")
}

type nopWriter struct{}

func (nopWriter) Write(context.Context, contract.ArtifactID, io.Reader) error { return nil }

type nopReader struct{}

func (nopReader) Read(context.Context, string) (*contract.Mesh, error) { return nil, nil }

// TestFactories 遍历注册表入口：合法选项可构造，未知字段拒绝。
func TestFactories(t *testing.T) {
	m := contract.LayerMeasure{FirstZ: 0.1, LayerH: 0.2}
	cases := []struct {
		name  string
		build func(raw json.RawMessage) error
	}{
		{"mesh/stl", func(raw json.RawMessage) error { _, err := MeshReader["stl"](raw, m); return err }},
		{"decomposer/grid", func(raw json.RawMessage) error { _, err := Decomposer["grid"](raw, nopReader{}); return err }},
		{"projector/grid", func(raw json.RawMessage) error { _, err := Projector["grid"](raw); return err }},
		{"slicer/direct", func(raw json.RawMessage) error { _, err := LayerSlicer["direct"](raw, nil); return err }},
		{"instructions/gcode", func(raw json.RawMessage) error { _, err := Instructions["gcode"](raw); return err }},
		{"plotter/gonumplot", func(raw json.RawMessage) error { _, err := Plotter["gonumplot"](raw, nopWriter{}); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.build(json.RawMessage(`{}`)))
			require.NoError(t, tc.build(nil))
			require.Error(t, tc.build(json.RawMessage(`{"x":1}`)), "未对未知字段报错")
		})
	}

	t.Run("writer/fs", func(t *testing.T) {
		raw, _ := json.Marshal(map[string]any{"root": t.TempDir()})
		_, err := Writer["fs"](raw)
		require.NoError(t, err)
		_, err = Writer["fs"](json.RawMessage(`{}`))
		require.ErrorIs(t, err, contract.ErrInvalidInput, "缺少 root")
		_, err = Writer["fs"](json.RawMessage(`{"root":"x","x":1}`))
		require.Error(t, err)
	})
}
