package mousedb

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrMalformed is returned when a movement document cannot be decoded.
var ErrMalformed = errors.New("malformed movement document")

// pointRecord and movementRecord are the on-disk layout. Field order here is
// the field order in the file.
type pointRecord struct {
	X         int     `json:"x"`
	Y         int     `json:"y"`
	DeltaTime float64 `json:"deltaTime"`
}

type movementRecord struct {
	ID         string        `json:"id,omitempty"`
	Color      []float64     `json:"color"`
	ClickState ClickState    `json:"clickState"`
	Button     Button        `json:"button"`
	Points     []pointRecord `json:"points"`
}

// Store persists the canonical list of recorded movements as a JSON array.
//
// Not safe for concurrent use; Database serializes access.
type Store struct {
	path      string
	log       zerolog.Logger
	movements []MouseMovement
	savedMod  time.Time
}

// NewStore creates a store backed by the file at path.
func NewStore(path string, log zerolog.Logger) *Store {
	return &Store{
		path: path,
		log:  log.With().Str("component", "movement-store").Logger(),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Movements returns the canonical list. Callers must not modify it.
func (s *Store) Movements() []MouseMovement {
	return s.movements
}

// SavedModTime is the modification time of the file as last written by Save.
func (s *Store) SavedModTime() time.Time {
	return s.savedMod
}

// Len returns the number of stored movements.
func (s *Store) Len() int {
	return len(s.movements)
}

// Append adds movements to the canonical list. Invalid movements are dropped.
func (s *Store) Append(movements ...MouseMovement) int {
	added := 0
	for _, m := range movements {
		if !m.IsValid() {
			continue
		}
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		s.movements = append(s.movements, m.Clone())
		added++
	}
	return added
}

// Load reads the backing file and replaces the canonical list.
//
// A missing file is the first-run case and yields an empty collection with a
// nil error. A malformed file returns an error and leaves the current list
// untouched.
func (s *Store) Load() ([]MouseMovement, error) {
	file, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info().Str("path", s.path).Msg("no movement file, starting empty")
		s.movements = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer file.Close()

	movements, err := Decode(file)
	if err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("failed to decode movement file, keeping previous state")
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}

	s.movements = movements
	s.log.Info().Str("path", s.path).Int("movements", len(movements)).Msg("movements loaded")
	return movements, nil
}

// Save writes the canonical list. The document is written to a temporary file
// in the same directory and renamed over the target.
func (s *Store) Save() error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".movements-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := Encode(tmp, s.movements); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}

	if info, err := os.Stat(s.path); err == nil {
		s.savedMod = info.ModTime()
	}
	s.log.Info().Str("path", s.path).Int("movements", len(s.movements)).Msg("movements saved")
	return nil
}

// Decode parses a movement document. Colour channels may be written as
// floats and are rounded to 8 bits; entries without an id get a new one.
func Decode(r io.Reader) ([]MouseMovement, error) {
	var records []movementRecord
	dec := json.NewDecoder(r)
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after document", ErrMalformed)
	}

	movements := make([]MouseMovement, 0, len(records))
	for i, rec := range records {
		m := MouseMovement{
			ClickState: rec.ClickState,
			Button:     rec.Button,
		}

		if rec.ID == "" {
			m.ID = uuid.New()
		} else {
			id, err := uuid.Parse(rec.ID)
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformed, i, err)
			}
			m.ID = id
		}

		c, err := decodeColor(rec.Color)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformed, i, err)
		}
		m.Color = c

		for _, p := range rec.Points {
			m.AddPoint(image.Pt(p.X, p.Y), p.DeltaTime)
		}
		movements = append(movements, m)
	}
	return movements, nil
}

// Encode writes movements as an indented JSON array. Output depends only on
// the input, so saved files diff cleanly.
func Encode(w io.Writer, movements []MouseMovement) error {
	records := make([]movementRecord, 0, len(movements))
	for _, m := range movements {
		rec := movementRecord{
			ID:         m.ID.String(),
			Color:      []float64{float64(m.Color.R), float64(m.Color.G), float64(m.Color.B)},
			ClickState: m.ClickState,
			Button:     m.Button,
			Points:     make([]pointRecord, 0, len(m.Points)),
		}
		if m.ID == uuid.Nil {
			rec.ID = ""
		}
		for _, p := range m.Points {
			rec.Points = append(rec.Points, pointRecord{X: p.Pos.X, Y: p.Pos.Y, DeltaTime: p.DeltaTime})
		}
		records = append(records, rec)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode movements: %w", err)
	}
	return nil
}

func decodeColor(channels []float64) (color.RGBA, error) {
	switch len(channels) {
	case 0:
		return color.RGBA{A: 255}, nil
	case 3, 4:
	default:
		return color.RGBA{}, fmt.Errorf("color needs 3 or 4 channels, got %d", len(channels))
	}

	var out [4]uint8
	out[3] = 255
	for i, v := range channels {
		out[i] = uint8(math.Round(math.Max(0, math.Min(255, v))))
	}
	return color.RGBA{R: out[0], G: out[1], B: out[2], A: out[3]}, nil
}
