package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want output
	}{
		{
			name: "successful parse",
			raw: "Parsing Successful - C:\\logs\\1.zevtc: 2.1s\r\n" +
				"Generated: C:\\out\\1_dhuum_kill.json\r\n" +
				"Generated: C:\\out\\1_dhuum_kill.html\r\n",
			want: output{
				JSONPath: "C:\\out\\1_dhuum_kill.json",
				HTMLPath: "C:\\out\\1_dhuum_kill.html",
				Success:  true,
			},
		},
		{
			name: "failure with message",
			raw:  "Parsing Failure - /logs/1.zevtc: Program: Fight too short\n",
			want: output{Failure: "Fight too short"},
		},
		{
			name: "failure overrides success marker",
			raw:  "Parsing Successful\nParsing Failure - a: b: broken\n",
			want: output{Failure: "broken"},
		},
		{
			name: "failure without message",
			raw:  "Parsing Failure\n",
			want: output{},
		},
		{
			name: "empty output",
			raw:  "",
			want: output{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseOutput(tt.raw))
		})
	}
}

func TestDecodeEncounter(t *testing.T) {
	raw := []byte(`{
		"triggerID": 19450,
		"fightName": "Dhuum CM",
		"recordedAccountBy": ":Some.1234",
		"durationMS": 421337,
		"success": false,
		"isCM": true,
		"isLegendaryCM": false,
		"timeStartStd": "2024-06-12 20:15:12 +02:00",
		"timeEndStd": "2024-06-12 20:22:13 +02:00",
		"targets": [
			{"id": 19767, "healthPercentBurned": 100},
			{"id": 19450, "healthPercentBurned": 87.5}
		]
	}`)

	enc, err := decodeEncounter(raw)
	require.NoError(t, err)

	assert.Equal(t, "Dhuum CM", enc.Name)
	assert.Equal(t, ":Some.1234", enc.Account)
	assert.Equal(t, 421337, enc.DurationMS)
	assert.False(t, enc.Success)
	assert.Equal(t, domain.DifficultyChallenge, enc.Difficulty)
	assert.True(t, enc.HasBoss)
	assert.InDelta(t, 87.5, enc.HealthPercentBurned, 0.001)

	wantStart := time.Date(2024, 6, 12, 18, 15, 12, 0, time.UTC)
	assert.True(t, wantStart.Equal(enc.StartTime), "start time %s", enc.StartTime)
	assert.Equal(t, 421*time.Second, enc.EndTime.Sub(enc.StartTime))
}

func TestDecodeEncounter_NoBossTarget(t *testing.T) {
	enc, err := decodeEncounter([]byte(`{"triggerID": 1, "fightName": "Golem", "isLegendaryCM": true, "targets": [{"id": 2}]}`))
	require.NoError(t, err)

	assert.False(t, enc.HasBoss)
	assert.Equal(t, domain.DifficultyLegendaryChallenge, enc.Difficulty)
	assert.True(t, enc.StartTime.IsZero())
}

func TestDecodeEncounter_Malformed(t *testing.T) {
	_, err := decodeEncounter([]byte(`{"triggerID": "nope"`))
	assert.Error(t, err)
}
