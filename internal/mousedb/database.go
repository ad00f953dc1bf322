package mousedb

import (
	"image"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Database owns the movement store, its index and the query engine. One
// Database is constructed at startup and handed to everything that needs
// paths.
//
// All methods are safe for concurrent use: the frame loop queries while the
// file watcher may reload.
type Database struct {
	mu     sync.Mutex
	store  *Store
	index  *Index
	engine *QueryEngine
	log    zerolog.Logger
}

// NewDatabase creates a database backed by the movement file at path.
func NewDatabase(path string, rng *rand.Rand, log zerolog.Logger) *Database {
	index := &Index{}
	return &Database{
		store:  NewStore(path, log),
		index:  index,
		engine: NewQueryEngine(index, rng, log),
		log:    log.With().Str("component", "movement-db").Logger(),
	}
}

// Path returns the backing file path.
func (db *Database) Path() string {
	return db.store.Path()
}

// Load reads the movement file and rebuilds the index. On error the previous
// movements and index stay in place.
func (db *Database) Load() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.store.Load(); err != nil {
		return err
	}
	db.index.Rebuild(db.store.Movements())
	db.log.Info().Int("indexed", db.index.Len()).Msg("movement index rebuilt")
	return nil
}

// Reload is Load under a name that reads better at call sites reacting to
// file changes.
func (db *Database) Reload() error {
	return db.Load()
}

// Save writes the current movements to the backing file.
func (db *Database) Save() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.store.Save()
}

// Append adds freshly recorded movements and rebuilds the index. It returns
// how many were kept.
func (db *Database) Append(movements ...MouseMovement) int {
	db.mu.Lock()
	defer db.mu.Unlock()

	added := db.store.Append(movements...)
	if added > 0 {
		db.index.Rebuild(db.store.Movements())
		db.log.Info().Int("added", added).Int("indexed", db.index.Len()).Msg("recorded movements appended")
	}
	return added
}

// Query returns a movement from from to within radius of to. See QueryEngine.Query.
func (db *Database) Query(from, to image.Point, radius float64, window Window) MouseMovement {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.engine.Query(from, to, radius, window)
}

// Candidates lists every movement a Query would choose from.
func (db *Database) Candidates(from, to image.Point, radius float64, window Window) []MouseMovement {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.engine.Candidates(from, to, radius, window)
}

// Movements returns a copy of the stored movements.
func (db *Database) Movements() []MouseMovement {
	db.mu.Lock()
	defer db.mu.Unlock()

	src := db.store.Movements()
	out := make([]MouseMovement, len(src))
	for i, m := range src {
		out[i] = m.Clone()
	}
	return out
}

// SavedModTime is the modification time of the movement file after the last Save.
func (db *Database) SavedModTime() time.Time {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.store.SavedModTime()
}

// Len returns the number of indexed movements.
func (db *Database) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.index.Len()
}

// Weights returns a copy of the index selection weights.
func (db *Database) Weights() []float64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.index.Weights()
}
