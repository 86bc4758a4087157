package evtc

import (
	"archive/zip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
)

// Header layout:
//   - bytes 0..4:   magic "EVTC"
//   - bytes 4..12:  build date (yyyymmdd)
//   - byte  12:     revision
//   - bytes 13..15: trigger id, little endian uint16
//   - byte  15:     unused
const (
	headerSize      = 16
	magic           = "EVTC"
	buildOffset     = 4
	revisionOffset  = 12
	triggerIDOffset = 13
)

var (
	// ErrInvalidHeader is returned for files that are not arcdps combat logs
	ErrInvalidHeader = errors.New("invalid evtc header")
	// ErrUnsupportedExtension is returned for files other than .evtc/.zevtc
	ErrUnsupportedExtension = errors.New("unsupported log file extension")
)

// Header holds the identifying metadata of a combat log
type Header struct {
	Path      string
	FileTime  time.Time
	Build     string
	Revision  uint8
	TriggerID domain.TriggerID
}

// IsLogFile reports whether path has a combat log extension
func IsLogFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".evtc", ".zevtc":
		return true
	default:
		return false
	}
}

// ReadHeader validates a combat log file and extracts its header.
// .zevtc files are zip archives whose first entry is the raw log.
func ReadHeader(path string) (Header, error) {
	if path == "" {
		return Header{}, fmt.Errorf("log file path is empty")
	}
	if !IsLogFile(path) {
		return Header{}, fmt.Errorf("%w: %s", ErrUnsupportedExtension, path)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return Header{}, fmt.Errorf("failed to stat log file: %w", err)
	}

	var raw []byte
	if strings.EqualFold(filepath.Ext(path), ".zevtc") {
		raw, err = readZipHeader(path)
	} else {
		raw, err = readPlainHeader(path)
	}
	if err != nil {
		return Header{}, err
	}

	header, err := parseHeader(raw)
	if err != nil {
		return Header{}, fmt.Errorf("%s: %w", path, err)
	}

	header.Path = path
	header.FileTime = stat.ModTime()
	return header, nil
}

func readPlainHeader(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	return readAtMost(file)
}

func readZipHeader(path string) ([]byte, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer archive.Close()

	if len(archive.File) == 0 {
		return nil, fmt.Errorf("%w: zip archive is empty", ErrInvalidHeader)
	}

	entry, err := archive.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("failed to extract file from zip archive: %w", err)
	}
	defer entry.Close()

	return readAtMost(entry)
}

func readAtMost(r io.Reader) ([]byte, error) {
	buf := make([]byte, headerSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read log header: %w", err)
	}
	return buf[:n], nil
}

func parseHeader(raw []byte) (Header, error) {
	if len(raw) < headerSize {
		return Header{}, fmt.Errorf("%w: file too short (%d bytes)", ErrInvalidHeader, len(raw))
	}
	if string(raw[:len(magic)]) != magic {
		return Header{}, fmt.Errorf("%w: bad magic %q", ErrInvalidHeader, raw[:len(magic)])
	}

	triggerID := domain.TriggerID(binary.LittleEndian.Uint16(raw[triggerIDOffset:]))
	if !triggerID.IsValid() {
		return Header{}, fmt.Errorf("%w: trigger id is zero", ErrInvalidHeader)
	}

	return Header{
		Build:     strings.TrimRight(string(raw[buildOffset:revisionOffset]), "\x00"),
		Revision:  raw[revisionOffset],
		TriggerID: triggerID,
	}, nil
}
