// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mockidp/mockidp/pkg/registry"
)

// webError is the uniform error body for failures raised outside the
// protocol engine. Engine-level protocol errors keep the status and body
// fosite defines for them and never pass through here.
type webError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// writeError maps an internal error to its client-facing response. No stack
// traces or internal state leave the process.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := webError{Code: "server_error"}

	if errors.Is(err, registry.ErrUnknownIssuer) {
		status = http.StatusNotFound
		body = webError{Code: "unknown_issuer", Description: err.Error()}
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
