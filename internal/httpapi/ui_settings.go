package httpapi

import "net/http"

type uiSettingsResponse struct {
	FeedMode                 string `json:"feed_mode"`
	FeedPollIntervalMS       int64  `json:"feed_poll_interval_ms"`
	FeedReconcileIntervalMS  int64  `json:"feed_reconcile_interval_ms"`
	AcceptAnswersAfterFinish bool   `json:"accept_answers_after_finish"`
	ChoiceSetVersion         int    `json:"choice_set_version"`
}

func (s *Server) handleUISettings(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, uiSettingsResponse{
		FeedMode:                 s.survey.FeedMode(),
		FeedPollIntervalMS:       s.cfg.FeedPollInterval.Milliseconds(),
		FeedReconcileIntervalMS:  s.cfg.FeedReconcileInterval.Milliseconds(),
		AcceptAnswersAfterFinish: s.cfg.AcceptAnswersAfterFinish,
		ChoiceSetVersion:         s.survey.Catalog().ChoiceSetVersion(),
	})
}
