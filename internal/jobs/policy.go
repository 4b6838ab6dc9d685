package jobs

import "quick-translate/internal/domain"

// CompletionActions lists the side effects applied after a successful job.
type CompletionActions struct {
	CopyToClipboard bool
	OpenPreview     bool
}

// DecideCompletion evaluates clipboard and preview policy independently.
func DecideCompletion(cfg domain.DoubleCopy) CompletionActions {
	return CompletionActions{
		CopyToClipboard: cfg.AutoCopy || cfg.PasteMode == domain.PasteModeClipboard,
		OpenPreview:     cfg.PasteMode == domain.PasteModePopup,
	}
}
