package data

import (
	"testing"
	"time"

	"github.com/halma/sternd/internal/board"
	"github.com/halma/sternd/internal/protocol"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("sqlite", ":memory:", false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndQueryResult(t *testing.T) {
	store := openTestStore(t)

	started := time.Now().Add(-time.Minute)
	history := []board.Movement{
		{{4, 8}, {5, 8}},
		{{12, 8}, {11, 8}},
	}
	result := protocol.GameResult{
		Type:       protocol.ResultFinished,
		Winner:     "player1",
		TotalTurns: 42,
		Scores:     [board.PlayerCount]uint{15, 3},
	}

	if err := store.RecordResult(result, history, started, time.Now()); err != nil {
		t.Fatalf("RecordResult: %v", err)
	}

	records, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.Result != protocol.ResultFinished || rec.Winner != "player1" {
		t.Errorf("record = %+v, want finished/player1", rec)
	}
	if rec.TotalTurns != 42 || rec.ScoreP1 != 15 || rec.ScoreP2 != 3 || rec.Moves != 2 {
		t.Errorf("record fields = %+v", rec)
	}
}

func TestOpenUnknownEngine(t *testing.T) {
	if _, err := Open("oracle", "", false); err == nil {
		t.Fatal("Open with unknown engine should fail")
	}
}
