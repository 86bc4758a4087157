package registry

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
)

func writeLog(t *testing.T, path string, trigger uint16) {
	t.Helper()

	raw := make([]byte, 32)
	copy(raw, "EVTC20240612")
	binary.LittleEndian.PutUint16(raw[13:], trigger)

	if strings.EqualFold(filepath.Ext(path), ".zevtc") {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, err := zw.Create(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".evtc")
		require.NoError(t, err)
		_, err = w.Write(raw)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		raw = buf.Bytes()
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, raw, 0644))
}

func TestLogID(t *testing.T) {
	root := filepath.FromSlash("/home/user/arcdps.cbtlogs")

	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "file in encounter directory",
			path: filepath.Join(root, "Dhuum", "20240612-201512.zevtc"),
			want: "Dhuum/20240612-201512.zevtc",
		},
		{
			name: "file in nested directory",
			path: filepath.Join(root, "Dhuum", "Some Player", "20240612-201512.zevtc"),
			want: "Dhuum/20240612-201512.zevtc",
		},
		{
			name: "file directly in root",
			path: filepath.Join(root, "20240612-201512.zevtc"),
			want: "20240612-201512.zevtc",
		},
		{
			name: "file outside root",
			path: filepath.FromSlash("/tmp/other/20240612-201512.zevtc"),
			want: "/tmp/other/20240612-201512.zevtc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LogID(root, tt.path))
		})
	}
}

func TestRegistry_Create(t *testing.T) {
	root := t.TempDir()
	reg := New(Options{WatchRoot: root})

	first := filepath.Join(root, "Dhuum", "1.zevtc")
	second := filepath.Join(root, "Unknown", "2.evtc")
	invalid := filepath.Join(root, "Dhuum", "3.evtc")
	writeLog(t, first, uint16(domain.TriggerDhuum))
	writeLog(t, second, 4242)
	require.NoError(t, os.WriteFile(invalid, []byte("not a log"), 0644))

	var hooked []string
	reg.AddIngestHook(func(rec *domain.Record) { hooked = append(hooked, rec.ID()) })

	rec, ok := reg.Create(first)
	require.True(t, ok)
	assert.Equal(t, "Dhuum/1.zevtc", rec.ID())

	d := rec.Snapshot()
	assert.Equal(t, domain.TriggerDhuum, d.TriggerID)
	assert.Equal(t, domain.ParseUnparsed, d.Parse.Status)
	assert.Equal(t, domain.UploadAvailable, d.DPSReport.Status)
	assert.Equal(t, domain.UploadAvailable, d.Wingman.Status)
	assert.False(t, d.SourceTime.IsZero())

	_, ok = reg.Create(second)
	require.True(t, ok)

	_, ok = reg.Create(invalid)
	assert.False(t, ok)

	_, ok = reg.Create(first)
	assert.False(t, ok, "duplicate ids are rejected")

	all := reg.SnapshotAll()
	require.Len(t, all, 2)
	assert.Equal(t, "Unknown/2.evtc", all[0].ID, "newest first")
	assert.Equal(t, "Dhuum/1.zevtc", all[1].ID)
	assert.Equal(t, "Unknown", all[0].DisplayName())

	assert.Equal(t, []string{"Dhuum/1.zevtc", "Unknown/2.evtc"}, hooked)

	found, ok := reg.Lookup("Dhuum/1.zevtc")
	require.True(t, ok)
	assert.Same(t, rec, found)
	_, ok = reg.Lookup("Dhuum/3.evtc")
	assert.False(t, ok)
}

func TestRegistry_DisabledServiceStartsUnavailable(t *testing.T) {
	root := t.TempDir()
	reg := New(Options{WatchRoot: root, WingmanUnavailable: true})

	path := filepath.Join(root, "1.zevtc")
	writeLog(t, path, uint16(domain.TriggerDhuum))

	rec, ok := reg.Create(path)
	require.True(t, ok)
	assert.Equal(t, domain.UploadAvailable, rec.Snapshot().DPSReport.Status)
	assert.Equal(t, domain.UploadUnavailable, rec.Snapshot().Wingman.Status)
}

func TestRegistry_SnapshotsSince(t *testing.T) {
	root := t.TempDir()
	reg := New(Options{WatchRoot: root})

	for _, name := range []string{"1.zevtc", "2.zevtc", "3.zevtc"} {
		path := filepath.Join(root, name)
		writeLog(t, path, uint16(domain.TriggerDhuum))
		_, ok := reg.Create(path)
		require.True(t, ok)
	}

	all, cursor := reg.SnapshotsSince(0)
	require.Len(t, all, 3)
	assert.Equal(t, reg.Version(), cursor)

	changed, next := reg.SnapshotsSince(cursor)
	assert.Empty(t, changed)
	assert.Equal(t, cursor, next)

	rec, _ := reg.Lookup("2.zevtc")
	rec.Write(func(d *domain.LogData) bool {
		d.Parse.Status = domain.ParseQueued
		return true
	})
	rec.Write(func(d *domain.LogData) bool { return false })

	changed, next = reg.SnapshotsSince(cursor)
	require.Len(t, changed, 1)
	assert.Equal(t, "2.zevtc", changed[0].ID)
	assert.Greater(t, next, cursor)
}

func TestRegistry_SnapshotsSinceSeesRecordCreatedDuringPoll(t *testing.T) {
	root := t.TempDir()
	reg := New(Options{WatchRoot: root})

	path := filepath.Join(root, "1.zevtc")
	writeLog(t, path, uint16(domain.TriggerDhuum))

	// park Create after it built the record but before it was inserted
	reg.mu.Lock()
	created := make(chan struct{})
	go func() {
		defer close(created)
		reg.Create(path)
	}()
	require.Eventually(t, func() bool { return reg.Version() > 0 }, time.Second, time.Millisecond)

	type poll struct {
		logs   []domain.LogData
		cursor uint64
	}
	polled := make(chan poll, 1)
	go func() {
		logs, cursor := reg.SnapshotsSince(0)
		polled <- poll{logs, cursor}
	}()
	reg.mu.Unlock()

	first := <-polled
	<-created
	second, _ := reg.SnapshotsSince(first.cursor)

	seen := len(first.logs) + len(second)
	assert.Equal(t, 1, seen, "a new record shows up in exactly one poll")

	rec, ok := reg.Lookup("1.zevtc")
	require.True(t, ok)
	assert.Equal(t, reg.Version(), rec.Snapshot().Version)
}

func TestRegistry_ConcurrentCreate(t *testing.T) {
	root := t.TempDir()
	reg := New(Options{WatchRoot: root})

	path := filepath.Join(root, "1.zevtc")
	writeLog(t, path, uint16(domain.TriggerDhuum))

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := reg.Create(path); ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_CloseRemovesArtifacts(t *testing.T) {
	root := t.TempDir()
	reg := New(Options{WatchRoot: root})

	parsedLog := filepath.Join(root, "1.zevtc")
	unparsedLog := filepath.Join(root, "2.zevtc")
	writeLog(t, parsedLog, uint16(domain.TriggerDhuum))
	writeLog(t, unparsedLog, uint16(domain.TriggerDhuum))

	htmlPath := filepath.Join(root, "1.html")
	jsonPath := filepath.Join(root, "1.json")
	require.NoError(t, os.WriteFile(htmlPath, []byte("<html/>"), 0644))
	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0644))

	rec, ok := reg.Create(parsedLog)
	require.True(t, ok)
	rec.Write(func(d *domain.LogData) bool {
		d.Parse.Status = domain.ParseParsed
		d.Parse.HTMLPath = htmlPath
		d.Parse.JSONPath = jsonPath
		return true
	})
	_, ok = reg.Create(unparsedLog)
	require.True(t, ok)

	require.NoError(t, reg.Close())

	assert.NoFileExists(t, htmlPath)
	assert.NoFileExists(t, jsonPath)
	assert.FileExists(t, parsedLog)
	assert.FileExists(t, unparsedLog)

	require.NoError(t, reg.Close(), "missing artifacts are not an error")
}
