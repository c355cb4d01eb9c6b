package api

import (
	"encoding/json"
	"net/http"

	"bnpl-risk/internal/common"

	"github.com/rs/zerolog/log"
)

type errorResponse struct {
	Code    common.ErrorCode `json:"code"`
	Field   string           `json:"field,omitempty"`
	Message string           `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := common.Code(err)
	status := common.HTTPStatus(code)

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", string(code)).Msg("Request failed")
	} else {
		log.Debug().Err(err).Str("code", string(code)).Msg("Request rejected")
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.ErrorsInc(string(code))
	}

	writeJSON(w, status, errorResponse{
		Code:    code,
		Field:   common.Field(err),
		Message: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
