package repository

import (
	"context"
	"errors"

	"flagforge/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var ErrNotFound = errors.New("record not found")

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *Repository) CreateProblem(ctx context.Context, problem *models.Problem) error {
	return r.db.WithContext(ctx).Create(problem).Error
}

func (r *Repository) GetProblemByID(ctx context.Context, id uuid.UUID) (*models.Problem, error) {
	var problem models.Problem
	if err := r.db.WithContext(ctx).First(&problem, "id = ?", id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &problem, nil
}

func (r *Repository) GetAllProblems(ctx context.Context) ([]models.Problem, error) {
	var problems []models.Problem
	err := r.db.WithContext(ctx).Order("created_at").Find(&problems).Error
	return problems, err
}

func (r *Repository) UpdateProblem(ctx context.Context, problem *models.Problem) error {
	return r.db.WithContext(ctx).Save(problem).Error
}

// DeleteProblem removes the problem definition only. Submissions referencing
// it keep their problem_uid value for audit purposes.
func (r *Repository) DeleteProblem(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Problem{}, "id = ?", id).Error
}

func (r *Repository) CreateTeam(ctx context.Context, team *models.Team) error {
	return r.db.WithContext(ctx).Create(team).Error
}

func (r *Repository) GetTeamByID(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	var team models.Team
	if err := r.db.WithContext(ctx).First(&team, "id = ?", id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &team, nil
}

func (r *Repository) UpdateTeam(ctx context.Context, team *models.Team) error {
	return r.db.WithContext(ctx).Save(team).Error
}

func (r *Repository) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Team{}, "id = ?", id).Error
}

func (r *Repository) GetScoreboard(ctx context.Context) ([]models.Team, error) {
	var teams []models.Team
	err := r.db.WithContext(ctx).Order("score desc, name").Find(&teams).Error
	return teams, err
}

func (r *Repository) CreateCompetitor(ctx context.Context, competitor *models.Competitor) error {
	return r.db.WithContext(ctx).Create(competitor).Error
}

func (r *Repository) GetCompetitorByID(ctx context.Context, id uuid.UUID) (*models.Competitor, error) {
	var competitor models.Competitor
	if err := r.db.WithContext(ctx).First(&competitor, "id = ?", id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &competitor, nil
}

func (r *Repository) AssignCompetitorTeam(ctx context.Context, competitorID uuid.UUID, teamID *uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Competitor{}).
		Where("id = ?", competitorID).
		Update("team_id", teamID).Error
}
