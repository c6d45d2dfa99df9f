package service

import (
	"context"
	"fmt"

	"github.com/certeva/certexam-backend/internal/model"
	"github.com/certeva/certexam-backend/internal/repository"
)

// CandidateService handles candidate account lookups.
type CandidateService struct {
	candidateRepo *repository.CandidateRepository
}

// NewCandidateService creates a new CandidateService.
func NewCandidateService(candidateRepo *repository.CandidateRepository) *CandidateService {
	return &CandidateService{candidateRepo: candidateRepo}
}

// GetByID fetches a candidate by id.
func (s *CandidateService) GetByID(ctx context.Context, id int) (*model.Candidate, error) {
	candidate, err := s.candidateRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	return candidate, nil
}

// GetByEmail fetches a candidate by email for login.
func (s *CandidateService) GetByEmail(ctx context.Context, email string) (*model.Candidate, error) {
	candidate, err := s.candidateRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get candidate by email: %w", err)
	}
	return candidate, nil
}

// Create registers a new candidate account.
func (s *CandidateService) Create(ctx context.Context, candidate *model.Candidate) error {
	if err := s.candidateRepo.Create(ctx, candidate); err != nil {
		return fmt.Errorf("create candidate: %w", err)
	}
	return nil
}
