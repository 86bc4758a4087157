package dpsreport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
	"github.com/SteelMorgan/evtc-log-uploader/internal/netop"
	"github.com/SteelMorgan/evtc-log-uploader/internal/pipeline"
	"github.com/SteelMorgan/evtc-log-uploader/internal/settings"
)

const (
	DefaultURL     = "https://dps.report/uploadContent"
	DefaultTimeout = 60 * time.Second
)

// Poster sends multipart requests
type Poster interface {
	Post(ctx context.Context, rawURL string, query url.Values, fields map[string]string, files []netop.File) (netop.Response, error)
}

// Settings is the part of the settings store the uploader needs
type Settings interface {
	Read() settings.Data
	StoreUserToken(token string) (bool, error)
}

// Uploader uploads raw logs to dps.report
type Uploader struct {
	client   Poster
	url      string
	settings Settings
}

// New creates a dps.report upload strategy
func New(client Poster, uploadURL string, store Settings) *Uploader {
	if uploadURL == "" {
		uploadURL = DefaultURL
	}
	return &Uploader{client: client, url: uploadURL, settings: store}
}

// Service implements pipeline.Strategy
func (u *Uploader) Service() domain.Service {
	return domain.ServiceDPSReport
}

// Precondition implements pipeline.Strategy. Any log can be uploaded,
// parsed or not.
func (u *Uploader) Precondition(*domain.LogData) error {
	return nil
}

type uploadResponse struct {
	ID        string          `json:"id"`
	Permalink string          `json:"permalink"`
	UserToken string          `json:"userToken"`
	Error     json.RawMessage `json:"error"`
}

// Upload implements pipeline.Strategy
func (u *Uploader) Upload(ctx context.Context, d domain.LogData) (pipeline.Outcome, error) {
	prefs := u.settings.Read().DPSReport

	query := url.Values{}
	if prefs.HasUserToken() {
		query.Set("userToken", prefs.UserToken)
	}
	if prefs.Anonymize {
		query.Set("anonymous", "true")
	}
	if prefs.DetailedWvW {
		query.Set("detailedwvw", "true")
	}

	resp, err := u.client.Post(ctx, u.url, query,
		map[string]string{"json": "1"},
		[]netop.File{{Field: "file", Path: d.SourcePath}},
	)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	if err := netop.CheckStatus(resp, errorMessage); err != nil {
		return pipeline.Outcome{}, err
	}

	var body uploadResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return pipeline.Outcome{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if err := responseError(body.Error); err != nil {
		return pipeline.Outcome{}, err
	}
	if body.Permalink == "" {
		return pipeline.Outcome{}, errors.New("response is missing the permalink")
	}

	if body.UserToken != "" && !prefs.HasUserToken() {
		go u.storeUserToken(body.UserToken)
	}

	return pipeline.Outcome{
		Status:   domain.UploadUploaded,
		URL:      body.Permalink,
		RemoteID: body.ID,
	}, nil
}

func (u *Uploader) storeUserToken(token string) {
	stored, err := u.settings.StoreUserToken(token)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to persist dps.report user token")
		return
	}
	if stored {
		log.Info().Msg("dps.report user token acquired")
	}
}

// responseError interprets the "error" member of a 200 response
func responseError(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return errors.New(msg)
	}
	return errors.New("response contains errors")
}

// errorMessage extracts the "error" string of a 4xx body
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error
}
