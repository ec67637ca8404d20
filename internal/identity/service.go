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

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opentrusty/orgmanager/internal/audit"
	"github.com/opentrusty/orgmanager/internal/observability/logger"
)

// LoginRecorder receives login outcomes for metrics
type LoginRecorder interface {
	RecordLogin(ctx context.Context, outcome string)
}

// LoginResult is returned on a successful admin login
type LoginResult struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Organization string    `json:"-"`
}

// Service provides admin authentication
type Service struct {
	repo        AdminRepository
	hasher      *PasswordHasher
	tokens      *TokenService
	auditLogger audit.Logger
	recorder    LoginRecorder

	// dummyHash is compared against when the email is unknown so both
	// failure paths cost one bcrypt evaluation.
	dummyHash string
}

// NewService creates a new identity service
func NewService(
	repo AdminRepository,
	hasher *PasswordHasher,
	tokens *TokenService,
	auditLogger audit.Logger,
	recorder LoginRecorder,
) (*Service, error) {
	dummy, err := hasher.Hash("orgmanager-unknown-admin")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare login service: %w", err)
	}
	return &Service{
		repo:        repo,
		hasher:      hasher,
		tokens:      tokens,
		auditLogger: auditLogger,
		recorder:    recorder,
		dummyHash:   dummy,
	}, nil
}

// Login authenticates an organization admin by email and password and issues an access token.
// Unknown email and wrong password both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	admin, err := s.repo.GetByAdminEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrAdminNotFound) {
			return nil, fmt.Errorf("failed to look up admin: %w", err)
		}
		s.hasher.Verify(password, s.dummyHash)
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "admin_not_found", audit.AttrEmail: email},
		})
		s.record(ctx, "failure")
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, admin.PasswordHash) {
		s.auditLogger.Log(ctx, audit.Event{
			Type:         audit.TypeLoginFailed,
			Organization: admin.Organization,
			ActorID:      admin.Email,
			Resource:     "login",
			Metadata:     map[string]any{audit.AttrReason: "invalid_password"},
		})
		s.record(ctx, "failure")
		return nil, ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(admin.PasswordHash) {
		s.rehash(ctx, admin, password)
	}

	token, expiresAt, err := s.tokens.Issue(admin.Email, admin.Organization)
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeLoginSuccess,
		Organization: admin.Organization,
		ActorID:      admin.Email,
		Resource:     "login",
	})
	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeTokenIssued,
		Organization: admin.Organization,
		ActorID:      admin.Email,
		Resource:     "access_token",
		Metadata:     map[string]any{"expires_at": expiresAt},
	})
	s.record(ctx, "success")

	return &LoginResult{
		AccessToken:  token,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
		Organization: admin.Organization,
	}, nil
}

// Authenticate verifies a bearer token and returns its principal
func (s *Service) Authenticate(ctx context.Context, token string) (*Principal, error) {
	principal, err := s.tokens.Authenticate(token)
	if err != nil {
		reason := "invalid_token"
		if errors.Is(err, ErrInvalidTokenPayload) {
			reason = "invalid_token_payload"
		}
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeTokenRejected,
			Resource: "access_token",
			Metadata: map[string]any{audit.AttrReason: reason},
		})
		return nil, err
	}
	return principal, nil
}

func (s *Service) rehash(ctx context.Context, admin *Admin, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		slog.WarnContext(ctx, "failed to rehash password", logger.Organization(admin.Organization), logger.Error(err))
		return
	}
	if err := s.repo.UpdatePasswordHash(ctx, admin.Organization, newHash); err != nil {
		slog.WarnContext(ctx, "failed to store rehashed password", logger.Organization(admin.Organization), logger.Error(err))
		return
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypePasswordRehashed,
		Organization: admin.Organization,
		ActorID:      admin.Email,
		Resource:     "admin_credentials",
		Metadata:     map[string]any{"cost": s.hasher.Cost()},
	})
}

func (s *Service) record(ctx context.Context, outcome string) {
	if s.recorder != nil {
		s.recorder.RecordLogin(ctx, outcome)
	}
}
