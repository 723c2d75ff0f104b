package service

import (
	"context"
	"errors"
	"log"
	"time"

	"flagforge/internal/grader"
	"flagforge/internal/models"
	"flagforge/internal/notify"
	"flagforge/internal/repository"

	"github.com/google/uuid"
)

type SubmitResult struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

type WindowState string

const (
	WindowNotStarted WindowState = "not_started"
	WindowActive     WindowState = "active"
	WindowExpired    WindowState = "expired"
)

const (
	msgAlreadySolved = "Your team has already solved this problem!"
	msgAlreadyTried  = "You or someone on your team has already tried this flag!"
	msgEmptyFlag     = "Empty flag"
	msgWindowClosed  = "Your team's submission window is not active"
)

// ScoringService orchestrates flag submissions: window gate, duplicate
// checks, grading and the one-time score increment per solved problem.
type ScoringService struct {
	repo           *repository.Repository
	graders        *grader.Registry
	announcer      notify.Announcer
	windowDuration time.Duration
	locks          *teamLocks
}

func NewScoringService(repo *repository.Repository, graders *grader.Registry, announcer notify.Announcer, windowDuration time.Duration) *ScoringService {
	return &ScoringService{
		repo:           repo,
		graders:        graders,
		announcer:      announcer,
		windowDuration: windowDuration,
		locks:          newTeamLocks(),
	}
}

// Submit grades one flag submission attempt.
//
// Every terminal outcome appends exactly one ledger row, except the
// validation rejections (unknown problem, empty flag) and the window gate,
// which leave no trace. Short-circuited duplicate rejections and grader
// failures record the attempt ungraded; graded attempts record the verdict.
// Ungraded rows are invisible to duplicate detection, so the same flag can
// be resubmitted after a grading outage. Grading runs outside the per-team
// lock; only the duplicate re-check plus increment-and-append is a critical
// section.
func (s *ScoringService) Submit(ctx context.Context, competitorID, problemID uuid.UUID, flag string, now time.Time) (SubmitResult, error) {
	competitor, err := s.repo.GetCompetitorByID(ctx, competitorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return SubmitResult{}, ErrCompetitorNotFound
		}
		return SubmitResult{}, &PersistenceError{Op: "load competitor", Err: err}
	}
	if competitor.TeamID == nil {
		return SubmitResult{}, ErrNoTeam
	}
	teamID := *competitor.TeamID

	problem, err := s.repo.GetProblemByID(ctx, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return SubmitResult{}, ErrProblemNotFound
		}
		return SubmitResult{}, &PersistenceError{Op: "load problem", Err: err}
	}

	if flag == "" {
		return SubmitResult{Accepted: false, Message: msgEmptyFlag}, nil
	}

	record := func(correct *bool) error {
		sub := &models.Submission{
			ProblemUID:   problemID,
			CompetitorID: &competitor.ID,
			TeamID:       &teamID,
			Flag:         flag,
			SubmittedAt:  now,
			Correct:      correct,
		}
		if err := s.repo.RecordSubmission(ctx, sub); err != nil {
			return &PersistenceError{Op: "record submission", Err: err}
		}
		return nil
	}

	// Window rejections are not recorded: a ledger row here would block the
	// same flag as "already tried" once the window opens.
	active, err := s.windowActive(ctx, teamID, now)
	if err != nil {
		return SubmitResult{}, &PersistenceError{Op: "check window", Err: err}
	}
	if !active {
		return SubmitResult{Accepted: false, Message: msgWindowClosed}, nil
	}

	solved, err := s.repo.HasCorrectSubmission(ctx, teamID, problemID)
	if err != nil {
		return SubmitResult{}, &PersistenceError{Op: "check solved", Err: err}
	}
	if solved {
		if err := record(nil); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Accepted: false, Message: msgAlreadySolved}, nil
	}

	tried, err := s.repo.HasIdenticalAttempt(ctx, teamID, problemID, flag)
	if err != nil {
		return SubmitResult{}, &PersistenceError{Op: "check attempts", Err: err}
	}
	if tried {
		if err := record(nil); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Accepted: false, Message: msgAlreadyTried}, nil
	}

	verdict, err := s.graders.Grade(ctx, grader.Request{
		Problem: problem,
		TeamID:  teamID,
		Flag:    flag,
	})
	if err != nil {
		// Grading infrastructure failed: leave the attempt ungraded and
		// surface the typed error so the client can retry.
		if recErr := record(nil); recErr != nil {
			return SubmitResult{}, recErr
		}
		return SubmitResult{}, err
	}

	if !verdict.Correct {
		incorrect := false
		if err := record(&incorrect); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Accepted: false, Message: verdict.Message}, nil
	}

	unlock := s.locks.Lock(teamID)
	defer unlock()

	// Re-check inside the critical section: a simultaneous submission may
	// have scored this problem while we were grading.
	solved, err = s.repo.HasCorrectSubmission(ctx, teamID, problemID)
	if err != nil {
		return SubmitResult{}, &PersistenceError{Op: "recheck solved", Err: err}
	}
	if solved {
		if err := record(nil); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Accepted: false, Message: msgAlreadySolved}, nil
	}

	correct := true
	sub := &models.Submission{
		ProblemUID:   problemID,
		CompetitorID: &competitor.ID,
		TeamID:       &teamID,
		Flag:         flag,
		SubmittedAt:  now,
		Correct:      &correct,
	}
	if err := s.repo.ScoreAndRecord(ctx, teamID, problem.Points, sub); err != nil {
		return SubmitResult{}, &PersistenceError{Op: "score submission", Err: err}
	}

	if team, err := s.repo.GetTeamByID(ctx, teamID); err != nil {
		log.Printf("Failed to load team %s for solve announcement: %v", teamID, err)
	} else {
		go s.announcer.AnnounceSolve(team.Name, problem.Name, problem.Points)
	}

	return SubmitResult{Accepted: true, Message: verdict.Message}, nil
}

// StartWindow creates the team's window or extends an existing one to
// now + the configured duration. Idempotent per team.
func (s *ScoringService) StartWindow(ctx context.Context, teamID uuid.UUID, now time.Time) error {
	if _, err := s.repo.GetTeamByID(ctx, teamID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTeamNotFound
		}
		return &PersistenceError{Op: "load team", Err: err}
	}

	window := &models.Window{
		TeamID:   teamID,
		StartsAt: now,
		EndsAt:   now.Add(s.windowDuration),
	}
	if err := s.repo.SaveWindow(ctx, window); err != nil {
		return &PersistenceError{Op: "save window", Err: err}
	}
	return nil
}

func (s *ScoringService) WindowStatus(ctx context.Context, teamID uuid.UUID, now time.Time) (WindowState, error) {
	window, err := s.repo.GetWindow(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return WindowNotStarted, nil
		}
		return "", &PersistenceError{Op: "load window", Err: err}
	}
	switch {
	case now.Before(window.StartsAt):
		return WindowNotStarted, nil
	case window.Active(now):
		return WindowActive, nil
	default:
		return WindowExpired, nil
	}
}

// ProblemsViewable reports whether the team may see the problem list: true
// once its window has started, even after it expires.
func (s *ScoringService) ProblemsViewable(ctx context.Context, teamID uuid.UUID, now time.Time) (bool, error) {
	window, err := s.repo.GetWindow(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, &PersistenceError{Op: "load window", Err: err}
	}
	return window.Started(now), nil
}

func (s *ScoringService) TeamScore(ctx context.Context, teamID uuid.UUID) (int, error) {
	team, err := s.repo.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrTeamNotFound
		}
		return 0, &PersistenceError{Op: "load team", Err: err}
	}
	return team.Score, nil
}

func (s *ScoringService) Scoreboard(ctx context.Context) ([]models.Team, error) {
	teams, err := s.repo.GetScoreboard(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "load scoreboard", Err: err}
	}
	return teams, nil
}

func (s *ScoringService) windowActive(ctx context.Context, teamID uuid.UUID, now time.Time) (bool, error) {
	window, err := s.repo.GetWindow(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return window.Active(now), nil
}
