package wingman

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
	"github.com/SteelMorgan/evtc-log-uploader/internal/netop"
	"github.com/SteelMorgan/evtc-log-uploader/internal/pipeline"
)

const (
	DefaultBaseURL         = "https://gw2wingman.nevermindcreations.de"
	DefaultTimeout         = 180 * time.Second
	DefaultReachabilityTTL = 180 * time.Second

	reachabilityKey = "servers"
)

var (
	// ErrUnavailable is returned while the servers are known to be unreachable
	ErrUnavailable = errors.New("service unavailable")
	// ErrMissingFiles is returned when the log or its reports are gone
	ErrMissingFiles = errors.New("missing required files for upload (evtc, json, html)")
)

// Client sends Wingman requests
type Client interface {
	Get(ctx context.Context, rawURL string, query url.Values) (netop.Response, error)
	Post(ctx context.Context, rawURL string, query url.Values, fields map[string]string, files []netop.File) (netop.Response, error)
}

// Options configure the uploader
type Options struct {
	BaseURL         string
	ReachabilityTTL time.Duration
}

// Uploader uploads parsed logs and their reports to GW2 Wingman
type Uploader struct {
	client       Client
	baseURL      string
	reachability *expirable.LRU[string, bool]
}

// New creates a Wingman upload strategy
func New(client Client, opts Options) *Uploader {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ReachabilityTTL <= 0 {
		opts.ReachabilityTTL = DefaultReachabilityTTL
	}
	return &Uploader{
		client:       client,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		reachability: expirable.NewLRU[string, bool](1, nil, opts.ReachabilityTTL),
	}
}

// Service implements pipeline.Strategy
func (u *Uploader) Service() domain.Service {
	return domain.ServiceWingman
}

// Precondition implements pipeline.Strategy. Wingman needs the analyzer reports.
func (u *Uploader) Precondition(d *domain.LogData) error {
	if d.Parse.Status != domain.ParseParsed {
		return fmt.Errorf("log is not parsed (status %s)", d.Parse.Status)
	}
	return nil
}

// Upload implements pipeline.Strategy
func (u *Uploader) Upload(ctx context.Context, d domain.LogData) (pipeline.Outcome, error) {
	for _, path := range []string{d.SourcePath, d.Parse.JSONPath, d.Parse.HTMLPath} {
		if path == "" {
			return pipeline.Outcome{}, ErrMissingFiles
		}
		if _, err := os.Stat(path); err != nil {
			return pipeline.Outcome{}, ErrMissingFiles
		}
	}

	if !u.reachable(ctx) {
		return pipeline.Outcome{}, ErrUnavailable
	}

	exists, err := u.checkUpload(ctx, d)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	if exists {
		return pipeline.Outcome{Status: domain.UploadSkipped, Message: "Log already exists"}, nil
	}

	if err := u.uploadProcessed(ctx, d); err != nil {
		return pipeline.Outcome{}, err
	}
	return pipeline.Outcome{Status: domain.UploadUploaded}, nil
}

// reachable consults the cached reachability and probes the servers once it expired
func (u *Uploader) reachable(ctx context.Context) bool {
	if available, ok := u.reachability.Get(reachabilityKey); ok {
		return available
	}

	resp, err := u.client.Get(ctx, u.baseURL+"/testConnection", nil)
	available := err == nil && resp.StatusCode == 200 && strings.TrimSpace(string(resp.Body)) == "True"
	u.reachability.Add(reachabilityKey, available)

	if !available {
		log.Warn().Err(err).Int("status", resp.StatusCode).Msg("Wingman servers unreachable")
	}
	return available
}

// checkUpload asks whether Wingman already has this log. It reports true when
// the upload should be skipped.
func (u *Uploader) checkUpload(ctx context.Context, d domain.LogData) (bool, error) {
	info, err := os.Stat(d.SourcePath)
	if err != nil {
		return false, ErrMissingFiles
	}

	fields := map[string]string{
		"file":      filepath.Base(d.SourcePath),
		"timestamp": strconv.FormatInt(localTimestamp(info.ModTime()), 10),
		"filesize":  strconv.FormatInt(info.Size(), 10),
		"account":   d.Parse.Encounter.Account,
		"triggerID": strconv.Itoa(int(d.TriggerID)),
	}

	resp, err := u.client.Post(ctx, u.baseURL+"/checkUpload", nil, fields, nil)
	if err != nil {
		return false, err
	}
	if err := netop.CheckStatus(resp, nil); err != nil {
		return false, fmt.Errorf("%w on checkUpload", err)
	}

	switch answer := strings.TrimSpace(string(resp.Body)); answer {
	case "True":
		return false, nil
	case "False":
		return true, nil
	case "Error":
		return false, errors.New("error on checkUpload")
	default:
		return false, fmt.Errorf("unexpected response on checkUpload: %q", answer)
	}
}

func (u *Uploader) uploadProcessed(ctx context.Context, d domain.LogData) error {
	files := []netop.File{
		{Field: "file", Path: d.SourcePath},
		{Field: "jsonfile", Path: d.Parse.JSONPath},
		{Field: "htmlfile", Path: d.Parse.HTMLPath},
	}

	resp, err := u.client.Post(ctx, u.baseURL+"/uploadProcessed", nil,
		map[string]string{"account": d.Parse.Encounter.Account}, files)
	if err != nil {
		return err
	}
	if err := netop.CheckStatus(resp, nil); err != nil {
		return fmt.Errorf("%w on uploadProcessed", err)
	}
	if answer := strings.TrimSpace(string(resp.Body)); answer != "True" {
		return fmt.Errorf("unexpected response on uploadProcessed: %q", answer)
	}
	return nil
}

// localTimestamp is the file time as seconds of the local wall clock, the way
// the Elite Insights Wingman uploader reports it
func localTimestamp(t time.Time) int64 {
	_, offset := t.Local().Zone()
	return t.Unix() + int64(offset)
}
