// Package corpus implements the shared, read-only-after-load Corpus Index
// (SPEC_FULL §3/§4.8): trackCount, per-track filenames, and the sharded
// peak-group -> occurrence lookup the Search Worker Pool queries. It is
// backed by a SQLite catalog (github.com/mattn/go-sqlite3), loaded once at
// startup; no query touches SQLite again afterward.
package corpus

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"audiosearch/internal/models"
)

// Corpus is the immutable, shared reference index. Safe for concurrent
// reads from any number of sessions and search workers once LoadFromSQLite
// returns.
type Corpus struct {
	filenames []string
	index     map[uint64][]models.Occurrence
}

// TrackCount returns the number of tracks in the corpus.
func (c *Corpus) TrackCount() int {
	return len(c.filenames)
}

// FileName returns the filename registered for trackIndex.
func (c *Corpus) FileName(trackIndex uint32) string {
	if int(trackIndex) >= len(c.filenames) {
		return ""
	}
	return c.filenames[trackIndex]
}

// Lookup returns every occurrence of groupKey in the corpus.
func (c *Corpus) Lookup(groupKey uint64) []models.Occurrence {
	return c.index[groupKey]
}

// New builds an empty in-memory Corpus, used by tests and as the starting
// point LoadFromSQLite fills.
func New() *Corpus {
	return &Corpus{index: make(map[uint64][]models.Occurrence)}
}

// AddTrack registers a track's filename and returns its trackIndex.
func (c *Corpus) AddTrack(filename string) uint32 {
	c.filenames = append(c.filenames, filename)
	return uint32(len(c.filenames) - 1)
}

// AddOccurrence records that groupKey was seen in trackIndex at chunkIndex.
func (c *Corpus) AddOccurrence(groupKey uint64, trackIndex, chunkIndex uint32) {
	c.index[groupKey] = append(c.index[groupKey], models.Occurrence{
		TrackIndex: trackIndex,
		ChunkIndex: chunkIndex,
	})
}

// LoadFromSQLite opens the catalog database at path and builds the
// in-memory index from its tracks/peaks tables. The schema mirrors what the
// teacher's db.NewDBClient/StoreFingerprints implies its own Mongo-backed
// store looks like, translated to two flat SQLite tables.
func LoadFromSQLite(path string) (*Corpus, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus database %q: %w", path, err)
	}
	defer db.Close()

	if err := ensureSchema(db); err != nil {
		return nil, err
	}

	c := New()

	trackRows, err := db.Query(`SELECT id, filename FROM tracks ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("reading tracks: %w", err)
	}
	defer trackRows.Close()

	idToIndex := make(map[int64]uint32)
	for trackRows.Next() {
		var id int64
		var filename string
		if err := trackRows.Scan(&id, &filename); err != nil {
			return nil, fmt.Errorf("scanning track row: %w", err)
		}
		idToIndex[id] = c.AddTrack(filename)
	}
	if err := trackRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tracks: %w", err)
	}

	peakRows, err := db.Query(`SELECT group_key, track_id, chunk_index FROM peaks`)
	if err != nil {
		return nil, fmt.Errorf("reading peaks: %w", err)
	}
	defer peakRows.Close()

	for peakRows.Next() {
		var groupKey int64
		var trackID int64
		var chunkIndex int64
		if err := peakRows.Scan(&groupKey, &trackID, &chunkIndex); err != nil {
			return nil, fmt.Errorf("scanning peak row: %w", err)
		}
		trackIndex, ok := idToIndex[trackID]
		if !ok {
			continue
		}
		c.AddOccurrence(uint64(groupKey), trackIndex, uint32(chunkIndex))
	}
	if err := peakRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating peaks: %w", err)
	}

	return c, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tracks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS peaks (
			group_key INTEGER NOT NULL,
			track_id INTEGER NOT NULL,
			chunk_index INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_peaks_group_key ON peaks(group_key);
	`)
	if err != nil {
		return fmt.Errorf("ensuring corpus schema: %w", err)
	}
	return nil
}

// StoreTrack persists one track's grouped-peak keys into the SQLite catalog
// at path, for use by the offline corpus-build CLI command
// (SPEC_FULL §10's "audiosearchd corpus load").
func StoreTrack(path, filename string, groupKeys []uint64, chunkIndices []uint32) error {
	if len(groupKeys) != len(chunkIndices) {
		return fmt.Errorf("groupKeys/chunkIndices length mismatch: %d vs %d", len(groupKeys), len(chunkIndices))
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("opening corpus database %q: %w", path, err)
	}
	defer db.Close()

	if err := ensureSchema(db); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	res, err := tx.Exec(`INSERT INTO tracks (filename) VALUES (?)`, filename)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("inserting track: %w", err)
	}
	trackID, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("reading inserted track id: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO peaks (group_key, track_id, chunk_index) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing peak insert: %w", err)
	}
	defer stmt.Close()

	for i, key := range groupKeys {
		if _, err := stmt.Exec(int64(key), trackID, chunkIndices[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting peak: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing track insert: %w", err)
	}
	return nil
}
