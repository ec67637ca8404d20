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
	"net/http"
	"strings"
)

// CreateOrganizationRequest represents organization registration data
type CreateOrganizationRequest struct {
	OrganizationName string `json:"organization_name" example:"acme"`
	Email            string `json:"email" example:"admin@acme.com"`
	Password         string `json:"password" example:"Acme@123"`
}

// UpdateOrganizationRequest represents an organization rename
type UpdateOrganizationRequest struct {
	OldOrganizationName string `json:"old_organization_name" example:"acme"`
	NewOrganizationName string `json:"new_organization_name" example:"acme_new"`
}

// CreateOrganization handles organization registration
// @Summary Create Organization
// @Description Register an organization with its admin and provision an empty partition
// @Tags Organization
// @Accept json
// @Produce json
// @Param request body CreateOrganizationRequest true "Organization Data"
// @Success 201 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /org/create [post]
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	org, err := h.tenantService.CreateOrganization(r.Context(),
		strings.TrimSpace(req.OrganizationName),
		strings.TrimSpace(req.Email),
		req.Password,
	)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"message":      "Organization created successfully",
		"organization": org.Name,
	})
}

// GetOrganization returns the public master record
// @Summary Get Organization
// @Tags Organization
// @Produce json
// @Param organization_name query string true "Organization name"
// @Success 200 {object} tenant.Organization
// @Failure 404 {object} map[string]string
// @Router /org/get [get]
func (h *Handler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("organization_name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "organization_name is required")
		return
	}

	org, err := h.tenantService.GetOrganization(r.Context(), name)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, org)
}

// UpdateOrganization renames the caller's organization and migrates its partition
// @Summary Rename Organization
// @Tags Organization
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateOrganizationRequest true "Rename"
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Router /org/update [put]
func (h *Handler) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OldOrganizationName == "" || req.NewOrganizationName == "" {
		respondError(w, http.StatusBadRequest, "old_organization_name and new_organization_name are required")
		return
	}

	err := h.tenantService.RenameOrganization(r.Context(), GetPrincipal(r.Context()),
		req.OldOrganizationName,
		strings.TrimSpace(req.NewOrganizationName),
	)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Organization updated successfully",
	})
}

// DeleteOrganization removes the caller's organization and drops its partition
// @Summary Delete Organization
// @Tags Organization
// @Produce json
// @Security BearerAuth
// @Param organization_name query string true "Organization name"
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /org/delete [delete]
func (h *Handler) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("organization_name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "organization_name is required")
		return
	}

	if err := h.tenantService.DeleteOrganization(r.Context(), GetPrincipal(r.Context()), name); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Organization deleted successfully",
	})
}

// organizationParam falls back to the token's organization when the query omits it
func organizationParam(r *http.Request) string {
	if name := r.URL.Query().Get("organization_name"); name != "" {
		return name
	}
	if p := GetPrincipal(r.Context()); p != nil {
		return p.Organization
	}
	return ""
}
