// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/opentrusty/orgmanager/internal/tenant"
)

// maxDocumentBytes caps a single document body
const maxDocumentBytes = 1 << 20

// AddDocument stores a JSON object in the organization's partition
// @Summary Add Document
// @Tags Documents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param organization_name query string false "Organization name, defaults to the token's organization"
// @Success 201 {object} tenant.Document
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /org/documents [post]
func (h *Handler) AddDocument(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "document too large")
		return
	}

	doc, err := h.tenantService.AddDocument(r.Context(), GetPrincipal(r.Context()), organizationParam(r), json.RawMessage(body))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, doc)
}

// ListDocumentsResponse is one page of partition contents
type ListDocumentsResponse struct {
	Documents []tenant.Document `json:"documents"`
	NextAfter string            `json:"next_after,omitempty"`
}

// ListDocuments pages through the organization's partition
// @Summary List Documents
// @Tags Documents
// @Produce json
// @Security BearerAuth
// @Param organization_name query string false "Organization name, defaults to the token's organization"
// @Param after query string false "Return documents after this ID"
// @Param limit query int false "Page size"
// @Success 200 {object} ListDocumentsResponse
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /org/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	docs, err := h.tenantService.ListDocuments(r.Context(), GetPrincipal(r.Context()), organizationParam(r), query.Get("after"), limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	resp := ListDocumentsResponse{Documents: docs}
	if resp.Documents == nil {
		resp.Documents = []tenant.Document{}
	}
	if len(docs) > 0 {
		resp.NextAfter = docs[len(docs)-1].ID
	}
	respondJSON(w, http.StatusOK, resp)
}
