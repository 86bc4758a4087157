package pipeline

import (
	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
	"github.com/SteelMorgan/evtc-log-uploader/internal/settings"
)

// ShouldAutoUpload decides whether a log is uploaded to svc without user action.
// Auto-upload fires at most once: any state other than AVAILABLE means a
// previous attempt (or a manual one) already happened.
func ShouldAutoUpload(rule settings.AutoUploadRule, d domain.LogData, svc domain.Service) bool {
	if !rule.Enabled {
		return false
	}

	state := d.Upload(svc)
	if state == nil || state.Status != domain.UploadAvailable {
		return false
	}

	if rule.Filter == settings.FilterSuccessfulOnly && !d.Parse.Successful() {
		return false
	}

	return rule.Allows(d.TriggerID)
}
