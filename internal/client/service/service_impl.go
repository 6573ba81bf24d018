package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/atelierhq/atelier/internal/client/domain"
	"github.com/atelierhq/atelier/pkg/repository"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  repository.Repository[domain.Client]
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  repository.Repository[domain.Client]
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("client.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateClientRequest) (domain.Client, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Client{}, domain.ErrInvalidName
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Client{}, domain.ErrInvalidEmail
	}

	now := time.Now().UTC()
	client := domain.Client{
		ID:        s.genID.Generate(),
		Name:      name,
		Email:     email,
		Company:   strings.TrimSpace(req.Company),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, &client); err != nil {
		return domain.Client{}, err
	}
	return client, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Client, error) {
	items, err := s.repo.Find(ctx, &domain.Client{})
	if err != nil {
		return nil, err
	}
	clients := make([]domain.Client, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		clients = append(clients, *item)
	}
	return clients, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Client, error) {
	parsed, err := s.parseID(id)
	if err != nil {
		return domain.Client{}, err
	}
	item, err := s.repo.FindOne(ctx, &domain.Client{ID: parsed})
	if err != nil {
		return domain.Client{}, err
	}
	if item == nil {
		return domain.Client{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateClientRequest) (domain.Client, error) {
	client, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Client{}, domain.ErrInvalidName
		}
		client.Name = name
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email == "" || !strings.Contains(email, "@") {
			return domain.Client{}, domain.ErrInvalidEmail
		}
		client.Email = email
	}
	if req.Company != nil {
		client.Company = strings.TrimSpace(*req.Company)
	}
	if req.Archived != nil {
		client.Archived = *req.Archived
	}
	client.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, client.ID.String(), &client); err != nil {
		return domain.Client{}, err
	}
	return client, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	client, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, client.ID.String())
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
