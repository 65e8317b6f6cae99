package app

import (
	"context"

	"trivia-solo-service/internal/domain"
)

// Backend is the generation service as seen by one player's session controller.
type Backend interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResponse, error)
	Cancel(ctx context.Context, submissionID string) (domain.CancelResponse, error)
	Credits(ctx context.Context) (domain.Credits, error)
}

// BackendFactory binds a Backend to the caller that passed the identity gate.
// credential carries whatever the remote service needs to recognise the caller.
type BackendFactory func(identity domain.Identity, credential string) Backend

// LocalBackend serves a player from the in-process TriviaService.
type LocalBackend struct {
	service  *TriviaService
	identity domain.Identity
}

func NewLocalBackend(service *TriviaService, identity domain.Identity) *LocalBackend {
	return &LocalBackend{service: service, identity: identity}
}

// LocalBackendFactory adapts a TriviaService into a BackendFactory.
func LocalBackendFactory(service *TriviaService) BackendFactory {
	return func(identity domain.Identity, _ string) Backend {
		return NewLocalBackend(service, identity)
	}
}

func (b *LocalBackend) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResponse, error) {
	return b.service.Generate(ctx, b.identity, req), nil
}

func (b *LocalBackend) Cancel(ctx context.Context, submissionID string) (domain.CancelResponse, error) {
	return b.service.Cancel(ctx, b.identity, submissionID), nil
}

func (b *LocalBackend) Credits(ctx context.Context) (domain.Credits, error) {
	return b.service.Credits(ctx, b.identity)
}
