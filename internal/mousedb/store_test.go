package mousedb

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMovements() []MouseMovement {
	a := makeMovement(pt(0, 0, 0.016), pt(3, 4, 0.033), pt(10, 12, 0.25))
	a.ClickState = ClickDown

	b := makeMovement(pt(50, 50, 0.4))
	b.ClickState = ClickUp
	b.Button = ButtonRight
	b.Color = color.RGBA{R: 200, G: 1, B: 99, A: 255}

	return []MouseMovement{a, b}
}

func TestStoreLoadMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	s := NewStore(filepath.Join(t.TempDir(), "mouse_movements.json"), zerolog.Nop())
	movements, err := s.Load()

	require.NoError(t, err)
	assert.Empty(t, movements)
	assert.Zero(t, s.Len())
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mouse_movements.json")
	want := sampleMovements()

	s := NewStore(path, zerolog.Nop())
	s.Append(want...)
	require.NoError(t, s.Save())

	loaded, err := NewStore(path, zerolog.Nop()).Load()
	require.NoError(t, err)

	if diff := cmp.Diff(want, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreEmptyCollectionRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mouse_movements.json")
	s := NewStore(path, zerolog.Nop())
	require.NoError(t, s.Save())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(raw))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestStoreMalformedKeepsPreviousState(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mouse_movements.json")
	s := NewStore(path, zerolog.Nop())
	s.Append(sampleMovements()...)
	require.NoError(t, s.Save())
	_, err := s.Load()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`[{"points": [`), 0o644))

	_, err = s.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, 2, s.Len())
}

func TestEncodeIsDeterministic(t *testing.T) {
	t.Parallel()

	movements := sampleMovements()

	var first, second bytes.Buffer
	require.NoError(t, Encode(&first, movements))

	decoded, err := Decode(bytes.NewReader(first.Bytes()))
	require.NoError(t, err)
	require.NoError(t, Encode(&second, decoded))

	assert.Equal(t, first.String(), second.String())
	assert.Less(t, strings.Index(first.String(), `"id"`), strings.Index(first.String(), `"points"`))
}

func TestDecodeLegacyDocument(t *testing.T) {
	t.Parallel()

	doc := `[
  {"color": [10.4, 20.6, 255.0], "points": [{"x": 1, "y": 2, "deltaTime": 0.5}, {"x": 4, "y": 6, "deltaTime": 0.25}]}
]`
	movements, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, movements, 1)

	m := movements[0]
	assert.NotEqual(t, uuid.Nil, m.ID)
	assert.Equal(t, color.RGBA{R: 10, G: 21, B: 255, A: 255}, m.Color)
	assert.Equal(t, ClickMove, m.ClickState)
	assert.Equal(t, ButtonLeft, m.Button)
	assert.Equal(t, image.Pt(1, 2), m.Min)
	assert.Equal(t, image.Pt(4, 6), m.Max)
	assert.InDelta(t, 0.75, m.TotalTime(), 1e-9)
}

func TestDecodeNumericEnums(t *testing.T) {
	t.Parallel()

	doc := `[
  {"button": 0, "clickState": 1, "color": [12.0, 200.0, 33.0], "points": [{"x": 5, "y": 5, "deltaTime": 0.1}]},
  {"button": 1, "clickState": 2, "color": [0.0, 0.0, 0.0], "points": [{"x": 7, "y": 9, "deltaTime": 0.2}]},
  {"button": "middle", "clickState": null, "color": [1, 2, 3], "points": [{"x": 0, "y": 0, "deltaTime": 0.3}]}
]`
	movements, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, movements, 3)

	assert.Equal(t, ClickDown, movements[0].ClickState)
	assert.Equal(t, ButtonLeft, movements[0].Button)
	assert.Equal(t, color.RGBA{R: 12, G: 200, B: 33, A: 255}, movements[0].Color)
	assert.Equal(t, ClickUp, movements[1].ClickState)
	assert.Equal(t, ButtonRight, movements[1].Button)
	assert.Equal(t, ClickMove, movements[2].ClickState)
	assert.Equal(t, ButtonMiddle, movements[2].Button)

	// Re-encoding writes the text form.
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, movements[:1]))
	assert.Contains(t, buf.String(), `"clickState": "down"`)
	assert.Contains(t, buf.String(), `"button": "left"`)
}

func TestDecodeRejectsBadEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"not an array", `{"points": []}`},
		{"bad id", `[{"id": "nope", "color": [1, 2, 3], "points": []}]`},
		{"short color", `[{"color": [1, 2], "points": []}]`},
		{"bad click state", `[{"clickState": "hover", "color": [1, 2, 3], "points": []}]`},
		{"click state out of range", `[{"clickState": 3, "color": [1, 2, 3], "points": []}]`},
		{"negative button", `[{"button": -1, "color": [1, 2, 3], "points": []}]`},
		{"fractional button", `[{"button": 1.5, "color": [1, 2, 3], "points": []}]`},
		{"trailing data", `[] {"points": []}`},
		{"trailing garbage", `[{"color": [1, 2, 3], "points": []}] x`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
