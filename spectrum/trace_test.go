package spectrum

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendCheckedDropsGlitch(t *testing.T) {
	tr := NewTrace(Sample{X: 1e-5, Y: 1})
	assert.True(t, tr.AppendChecked(Sample{X: 2e-5, Y: 2}))
	assert.False(t, tr.AppendChecked(Sample{X: 1, Y: 3}))
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, 1, tr.Rejected())
	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, 2e-5, last.X)
}

func TestAppendCheckedAfterZeroKeepsSample(t *testing.T) {
	var tr Trace
	tr.Append(Sample{X: 0, Y: 1})
	assert.True(t, tr.AppendChecked(Sample{X: 5, Y: 1}))
	assert.Equal(t, 0, tr.Rejected())
}

func TestNilTraceIsEmpty(t *testing.T) {
	var tr *Trace
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, 0, tr.Rejected())
	_, ok := tr.Last()
	assert.False(t, ok)
	assert.Empty(t, tr.Samples())
}

func TestNewTraceCopies(t *testing.T) {
	in := []Sample{{X: 1, Y: 2}}
	tr := NewTrace(in...)
	in[0].X = 9
	assert.Equal(t, 1.0, tr.At(0).X)
}

func TestTraceJSON(t *testing.T) {
	tr := NewTrace(Sample{X: 0, Y: 1}, Sample{X: 1e-4, Y: 2})
	tr.rejected = 3
	b, err := json.Marshal(tr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":[0,0.0001],"y":[1,2],"rejected":3}`, string(b))

	var back Trace
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, tr.Samples(), back.Samples())
	assert.Equal(t, 3, back.Rejected())
}
