package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
	"github.com/SteelMorgan/evtc-log-uploader/internal/settings"
)

func TestShouldAutoUpload(t *testing.T) {
	allowDhuum := []domain.TriggerID{domain.TriggerDhuum}

	parsed := func(success bool) domain.ParseResult {
		return domain.ParseResult{
			Status:    domain.ParseParsed,
			Encounter: domain.Encounter{Name: "Dhuum", Success: success},
		}
	}

	tests := []struct {
		name    string
		rule    settings.AutoUploadRule
		trigger domain.TriggerID
		parse   domain.ParseResult
		status  domain.UploadStatus
		svc     domain.Service
		want    bool
	}{
		{
			name:    "disabled rule",
			rule:    settings.AutoUploadRule{Enabled: false, Encounters: allowDhuum},
			trigger: domain.TriggerDhuum,
			status:  domain.UploadAvailable,
			svc:     domain.ServiceDPSReport,
			want:    false,
		},
		{
			name:    "allowed encounter",
			rule:    settings.AutoUploadRule{Enabled: true, Filter: settings.FilterNone, Encounters: allowDhuum},
			trigger: domain.TriggerDhuum,
			status:  domain.UploadAvailable,
			svc:     domain.ServiceDPSReport,
			want:    true,
		},
		{
			name:    "encounter not on allow-list",
			rule:    settings.AutoUploadRule{Enabled: true, Encounters: allowDhuum},
			trigger: domain.TriggerSabethaTheSaboteur,
			status:  domain.UploadAvailable,
			svc:     domain.ServiceDPSReport,
			want:    false,
		},
		{
			name:    "empty allow-list",
			rule:    settings.AutoUploadRule{Enabled: true},
			trigger: domain.TriggerDhuum,
			status:  domain.UploadAvailable,
			svc:     domain.ServiceDPSReport,
			want:    false,
		},
		{
			name:    "already failed",
			rule:    settings.AutoUploadRule{Enabled: true, Encounters: allowDhuum},
			trigger: domain.TriggerDhuum,
			status:  domain.UploadFailed,
			svc:     domain.ServiceDPSReport,
			want:    false,
		},
		{
			name:    "already uploaded",
			rule:    settings.AutoUploadRule{Enabled: true, Encounters: allowDhuum},
			trigger: domain.TriggerDhuum,
			status:  domain.UploadUploaded,
			svc:     domain.ServiceDPSReport,
			want:    false,
		},
		{
			name:    "successful only with unparsed log",
			rule:    settings.AutoUploadRule{Enabled: true, Filter: settings.FilterSuccessfulOnly, Encounters: allowDhuum},
			trigger: domain.TriggerDhuum,
			status:  domain.UploadAvailable,
			svc:     domain.ServiceWingman,
			want:    false,
		},
		{
			name:    "successful only with failed encounter",
			rule:    settings.AutoUploadRule{Enabled: true, Filter: settings.FilterSuccessfulOnly, Encounters: allowDhuum},
			trigger: domain.TriggerDhuum,
			parse:   parsed(false),
			status:  domain.UploadAvailable,
			svc:     domain.ServiceWingman,
			want:    false,
		},
		{
			name:    "successful only with successful encounter",
			rule:    settings.AutoUploadRule{Enabled: true, Filter: settings.FilterSuccessfulOnly, Encounters: allowDhuum},
			trigger: domain.TriggerDhuum,
			parse:   parsed(true),
			status:  domain.UploadAvailable,
			svc:     domain.ServiceWingman,
			want:    true,
		},
		{
			name:    "unknown service",
			rule:    settings.AutoUploadRule{Enabled: true, Encounters: allowDhuum},
			trigger: domain.TriggerDhuum,
			status:  domain.UploadAvailable,
			svc:     domain.Service("gw2raidar"),
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := domain.LogData{
				ID:        "a.zevtc",
				TriggerID: tt.trigger,
				Parse:     tt.parse,
				DPSReport: domain.UploadState{Status: tt.status},
				Wingman:   domain.UploadState{Status: tt.status},
			}
			if d.Parse.Status == "" {
				d.Parse.Status = domain.ParseUnparsed
			}

			assert.Equal(t, tt.want, ShouldAutoUpload(tt.rule, d, tt.svc))
		})
	}
}
