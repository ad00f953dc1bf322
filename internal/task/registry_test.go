package task

import (
	"errors"
	"image"
	"image/draw"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTask struct {
	name    string
	inputs  []string
	outputs []string
	loadErr error
	panics  bool

	log *[]string
}

func (s *stubTask) Name() string              { return s.name }
func (s *stubTask) InputResources() []string  { return s.inputs }
func (s *stubTask) OutputResources() []string { return s.outputs }
func (s *stubTask) Draw(draw.Image)           { *s.log = append(*s.log, "draw "+s.name) }

func (s *stubTask) Load() error {
	*s.log = append(*s.log, "load "+s.name)
	return s.loadErr
}

func (s *stubTask) Run(float64) {
	*s.log = append(*s.log, "run "+s.name)
	if s.panics {
		panic("boom")
	}
}

func TestRegistryRunsInOrder(t *testing.T) {
	t.Parallel()

	var log []string
	r := NewRegistry(zerolog.Nop(), MainFrame)
	require.NoError(t, r.Add(&stubTask{name: "tabs", inputs: []string{MainFrame}, outputs: []string{"Inventory Tab"}, log: &log}))
	require.NoError(t, r.Add(&stubTask{name: "inventory", inputs: []string{"Inventory Tab"}, log: &log}))

	require.NoError(t, r.Load())
	r.Run(0.016)
	r.Draw(image.NewRGBA(image.Rect(0, 0, 1, 1)))

	assert.Equal(t, []string{
		"load tabs", "load inventory",
		"run tabs", "run inventory",
		"draw tabs", "draw inventory",
	}, log)
	assert.Len(t, r.Tasks(), 2)

	found, ok := r.Find("inventory")
	require.True(t, ok)
	assert.Equal(t, "inventory", found.Name())
	_, ok = r.Find("missing")
	assert.False(t, ok)
}

func TestRegistryRejectsBadTasks(t *testing.T) {
	t.Parallel()

	var log []string
	r := NewRegistry(zerolog.Nop(), MainFrame)

	err := r.Add(&stubTask{name: "inventory", inputs: []string{"Inventory Tab"}, log: &log})
	require.ErrorIs(t, err, ErrUnresolvedInput)

	require.NoError(t, r.Add(&stubTask{name: "a", log: &log}))
	require.ErrorIs(t, r.Add(&stubTask{name: "a", log: &log}), ErrDuplicateTask)
}

func TestRegistryLoadStopsAtFirstError(t *testing.T) {
	t.Parallel()

	var log []string
	errModel := errors.New("model missing")
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Add(&stubTask{name: "a", loadErr: errModel, log: &log}))
	require.NoError(t, r.Add(&stubTask{name: "b", log: &log}))

	err := r.Load()
	require.ErrorIs(t, err, errModel)
	assert.Contains(t, err.Error(), "load a")
	assert.Equal(t, []string{"load a"}, log)
}

func TestRegistryRecoversPanickingTask(t *testing.T) {
	t.Parallel()

	var log []string
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Add(&stubTask{name: "bad", panics: true, log: &log}))
	require.NoError(t, r.Add(&stubTask{name: "good", log: &log}))

	assert.NotPanics(t, func() { r.Run(0.016) })
	assert.Equal(t, []string{"run bad", "run good"}, log)
}

func TestResources(t *testing.T) {
	t.Parallel()

	res := NewResources()
	_, err := Get[*image.RGBA](res, MainFrame)
	require.ErrorIs(t, err, ErrResourceMissing)

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	res.Set(MainFrame, img)
	res.Set("count", 3)

	got, err := Get[*image.RGBA](res, MainFrame)
	require.NoError(t, err)
	assert.Same(t, img, got)

	_, err = Get[string](res, "count")
	require.ErrorIs(t, err, ErrResourceType)

	assert.Equal(t, []string{MainFrame, "count"}, res.Names())
	assert.True(t, res.Has("count"))

	res.Remove("count")
	res.Remove("never set")
	assert.False(t, res.Has("count"))
}
