package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
)

type fakeInserter struct {
	mu      sync.Mutex
	batches [][]EncounterRow
	err     error
}

func (f *fakeInserter) Insert(_ context.Context, rows []EncounterRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]EncounterRow(nil), rows...))
	return f.err
}

func (f *fakeInserter) rows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func parsed(id string) domain.LogData {
	return domain.LogData{
		ID:        id,
		TriggerID: domain.TriggerDhuum,
		Parse: domain.ParseResult{
			Status: domain.ParseParsed,
			Encounter: domain.Encounter{
				Name:       "Dhuum",
				Account:    ":Some.1234",
				Success:    true,
				DurationMS: 421337,
				Difficulty: domain.DifficultyChallenge,
				StartTime:  time.Date(2024, 6, 12, 20, 15, 12, 0, time.UTC),
			},
		},
	}
}

func TestRowFromLog(t *testing.T) {
	row := RowFromLog(parsed("Dhuum/1.zevtc"))

	assert.Equal(t, "Dhuum/1.zevtc", row.LogID)
	assert.Equal(t, uint16(19450), row.TriggerID)
	assert.Equal(t, "Dhuum", row.Encounter)
	assert.Equal(t, "CM", row.Difficulty)
	assert.Equal(t, uint32(421337), row.DurationMS)
	assert.True(t, row.Success)
	assert.Equal(t, minDateTime, row.EndTime, "zero times are clamped")
}

func TestSink_FlushesFullBatches(t *testing.T) {
	ins := &fakeInserter{}
	s := New(ins, BatchConfig{MaxSize: 2, FlushInterval: time.Hour})
	s.Start()

	for _, id := range []string{"1", "2", "3"} {
		s.Record(parsed(id))
	}

	require.Eventually(t, func() bool { return ins.rows() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	assert.Equal(t, 3, ins.rows(), "close writes the partial batch")
	assert.Len(t, ins.batches, 2)
}

func TestSink_FlushesOnInterval(t *testing.T) {
	ins := &fakeInserter{}
	s := New(ins, BatchConfig{MaxSize: 100, FlushInterval: 20 * time.Millisecond})
	s.Start()
	defer s.Close()

	s.Record(parsed("1"))
	require.Eventually(t, func() bool { return ins.rows() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSink_IgnoresUnparsedAndClosed(t *testing.T) {
	ins := &fakeInserter{}
	s := New(ins, BatchConfig{MaxSize: 1, FlushInterval: time.Hour})
	s.Start()

	unparsed := parsed("1")
	unparsed.Parse.Status = domain.ParseFailed
	s.Record(unparsed)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	s.Record(parsed("2"))

	assert.Equal(t, 0, ins.rows())
}

func TestSink_InsertErrorDoesNotStop(t *testing.T) {
	ins := &fakeInserter{err: errors.New("code: 999, connection lost")}
	s := New(ins, BatchConfig{MaxSize: 1, FlushInterval: time.Hour})
	s.Start()

	s.Record(parsed("1"))
	s.Record(parsed("2"))
	require.NoError(t, s.Close())

	assert.Len(t, ins.batches, 2)
}
