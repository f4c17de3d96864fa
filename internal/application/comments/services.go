package comments

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bryanwahyu/invoice-audit/internal/application"
	domain "github.com/bryanwahyu/invoice-audit/internal/domain/comments"
	ierr "github.com/bryanwahyu/invoice-audit/internal/errors"
)

// Service implements use-cases untuk Comment
type Service struct {
	Repo     domain.Repository
	Clock    application.Clock
	validate *validator.Validate
}

func NewService(repo domain.Repository, clock application.Clock) *Service {
	return &Service{Repo: repo, Clock: clock, validate: validator.New()}
}

// Command untuk tambah komentar
type CreateComment struct {
	TenantID  string `json:"-" validate:"required,max=64"`
	DatasetID string `json:"-" validate:"required,max=36"`
	Kind      string `json:"kind" validate:"required,oneof=duplicate_group seller"`
	TargetKey string `json:"target_key" validate:"required,max=255"`
	Author    string `json:"author" validate:"max=100"`
	Body      string `json:"body" validate:"required,min=1,max=4000"`
}

func (s *Service) Add(ctx context.Context, cmd CreateComment) (*domain.Comment, error) {
	cmd.TargetKey = strings.TrimSpace(cmd.TargetKey)
	cmd.Author = strings.TrimSpace(cmd.Author)
	cmd.Body = strings.TrimSpace(cmd.Body)

	if err := s.validate.Struct(cmd); err != nil {
		return nil, ierr.WrapValidation(err, "invalid comment")
	}

	c := &domain.Comment{
		ID:        domain.CommentID(uuid.New().String()),
		TenantID:  cmd.TenantID,
		DatasetID: cmd.DatasetID,
		Kind:      domain.TargetKind(cmd.Kind),
		TargetKey: cmd.TargetKey,
		Author:    cmd.Author,
		Body:      cmd.Body,
		CreatedAt: s.Clock.Now(),
	}
	if err := s.Repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// List comments of a dataset; kind and key are optional filters
func (s *Service) List(ctx context.Context, tenant, datasetID, kind, key string) ([]*domain.Comment, error) {
	switch domain.TargetKind(kind) {
	case "", domain.TargetDuplicateGroup, domain.TargetSeller:
	default:
		return nil, ierr.Validationf("unknown comment kind %q", kind)
	}
	return s.Repo.List(ctx, tenant, datasetID, domain.Filter{
		Kind:      domain.TargetKind(kind),
		TargetKey: strings.TrimSpace(key),
	})
}

func (s *Service) Delete(ctx context.Context, tenant string, id domain.CommentID) error {
	return s.Repo.Delete(ctx, tenant, id)
}
