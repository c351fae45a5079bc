// Package data persists finished game results. This is an archive of
// outcomes, not resumable game state; the server never reads it back during
// play.
package data

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/halma/sternd/internal/board"
	"github.com/halma/sternd/internal/protocol"
)

// GameRecord is one finished game.
type GameRecord struct {
	ID         uint64 `gorm:"primaryKey"`
	Result     string `gorm:"not null"`
	Winner     string
	TotalTurns int
	ScoreP1    int
	ScoreP2    int
	Moves      int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store wraps the database handle used for the result archive.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured engine ("sqlite" or "postgres") and
// migrates the schema.
func Open(engine, dsn string, debug bool) (*Store, error) {
	log := logger.Default.LogMode(logger.Error)
	if debug {
		log = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch engine {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database engine %q", engine)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := db.AutoMigrate(&GameRecord{}); err != nil {
		return nil, fmt.Errorf("error auto migrating db: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordResult archives one finished game. Satisfies hub.Recorder.
func (s *Store) RecordResult(result protocol.GameResult, history []board.Movement, started, finished time.Time) error {
	record := &GameRecord{
		Result:     result.Type,
		Winner:     result.Winner,
		TotalTurns: int(result.TotalTurns),
		ScoreP1:    int(result.Scores[board.Player1]),
		ScoreP2:    int(result.Scores[board.Player2]),
		Moves:      len(history),
		StartedAt:  started,
		FinishedAt: finished,
	}
	if err := s.db.Create(record).Error; err != nil {
		return fmt.Errorf("error inserting game record: %w", err)
	}
	return nil
}

// Recent returns the latest n finished games, newest first.
func (s *Store) Recent(n int) ([]GameRecord, error) {
	var records []GameRecord
	err := s.db.Order("finished_at desc").Limit(n).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("error querying game records: %w", err)
	}
	return records, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	database, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("error getting current connection: %w", err)
	}
	return database.Close()
}
