package storage

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
)

// Storage keys.
const (
	keyStats      = "stats"
	gameKeyPrefix = "game:"
)

// GameRecord is one archived game.
type GameRecord struct {
	StartSFEN string    `json:"start_sfen"`
	Moves     []string  `json:"moves,omitempty"`
	Plies     int       `json:"plies"`
	Result    int       `json:"result"` // 0 win, 1 lose, 2 draw (engine view)
	FinalSFEN string    `json:"final_sfen"`
	Finished  time.Time `json:"finished"`
}

// EngineStats aggregates archived game outcomes.
type EngineStats struct {
	GamesPlayed int `json:"games_played"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`
	Draws       int `json:"draws"`
}

// Store wraps BadgerDB for the engine's persistent archive.
type Store struct {
	db *badger.DB
}

// Open opens the store in the default database directory.
func Open() (*Store, error) {
	dbDir, err := DatabaseDir()
	if err != nil {
		return nil, err
	}
	return OpenAt(dbDir)
}

// OpenAt opens the store in the given directory.
func OpenAt(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// gameKey derives a stable unique key for a record from its start position,
// length and completion time.
func gameKey(rec *GameRecord) []byte {
	h := xxhash.New()
	h.WriteString(rec.StartSFEN)
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(rec.Plies))
	binary.LittleEndian.PutUint64(buf[8:], uint64(rec.Finished.UnixNano()))
	h.Write(buf[:])

	key := make([]byte, len(gameKeyPrefix)+8)
	copy(key, gameKeyPrefix)
	binary.BigEndian.PutUint64(key[len(gameKeyPrefix):], h.Sum64())
	return key
}

// SaveGame archives a finished game and folds it into the stats.
func (s *Store) SaveGame(rec GameRecord) error {
	if rec.Finished.IsZero() {
		rec.Finished = time.Now()
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		return err
	}

	stats, err := s.LoadStats()
	if err != nil {
		return err
	}
	stats.GamesPlayed++
	switch rec.Result {
	case 0:
		stats.Wins++
	case 1:
		stats.Losses++
	default:
		stats.Draws++
	}
	statsData, err := json.Marshal(stats)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(gameKey(&rec), data); err != nil {
			return err
		}
		return txn.Set([]byte(keyStats), statsData)
	})
}

// LoadStats loads the aggregate statistics, empty when absent.
func (s *Store) LoadStats() (*EngineStats, error) {
	stats := &EngineStats{}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyStats))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, stats)
		})
	})
	return stats, err
}

// Games iterates every archived game, stopping early when fn returns false.
func (s *Store) Games(fn func(GameRecord) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(gameKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec GameRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			if !fn(rec) {
				return nil
			}
		}
		return nil
	})
}
