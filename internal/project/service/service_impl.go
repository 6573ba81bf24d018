package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	clientdomain "github.com/atelierhq/atelier/internal/client/domain"
	"github.com/atelierhq/atelier/internal/project/domain"
	"github.com/atelierhq/atelier/pkg/repository"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    repository.Repository[domain.Project]
	Clients clientdomain.Service
}

type Service struct {
	log     *zap.Logger
	genID   *snowflake.Node
	repo    repository.Repository[domain.Project]
	clients clientdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("project.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		clients: p.Clients,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateProjectRequest) (domain.Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Project{}, domain.ErrInvalidName
	}
	client, err := s.clients.GetByID(ctx, req.ClientID)
	if err != nil {
		return domain.Project{}, err
	}

	now := time.Now().UTC()
	project := domain.Project{
		ID:        s.genID.Generate(),
		ClientID:  client.ID,
		Name:      name,
		Status:    domain.ProjectStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, &project); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

func (s *Service) List(ctx context.Context, clientID string) ([]domain.Project, error) {
	query := &domain.Project{}
	if strings.TrimSpace(clientID) != "" {
		id, err := snowflake.ParseString(strings.TrimSpace(clientID))
		if err != nil {
			return nil, domain.ErrInvalidID
		}
		query.ClientID = id
	}
	items, err := s.repo.Find(ctx, query)
	if err != nil {
		return nil, err
	}
	projects := make([]domain.Project, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		projects = append(projects, *item)
	}
	return projects, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Project, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return domain.Project{}, domain.ErrInvalidID
	}
	item, err := s.repo.FindOne(ctx, &domain.Project{ID: parsed})
	if err != nil {
		return domain.Project{}, err
	}
	if item == nil {
		return domain.Project{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateProjectRequest) (domain.Project, error) {
	project, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Project{}, domain.ErrInvalidName
		}
		project.Name = name
	}
	if req.Status != nil {
		switch *req.Status {
		case domain.ProjectStatusActive, domain.ProjectStatusOnHold, domain.ProjectStatusCompleted:
			project.Status = *req.Status
		default:
			return domain.Project{}, domain.ErrInvalidStatus
		}
	}
	project.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, project.ID.String(), &project); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	project, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, project.ID.String())
}
