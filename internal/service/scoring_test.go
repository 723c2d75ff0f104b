package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"flagforge/internal/grader"
	"flagforge/internal/models"
	"flagforge/internal/notify"
	"flagforge/internal/repository"
	"flagforge/internal/service"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const windowDuration = 45 * time.Minute

func newTestService(t *testing.T) (*service.ScoringService, *repository.Repository) {
	t.Helper()
	registry := grader.NewRegistry(2 * time.Second)
	registry.Register("static", grader.NewStaticGrader())
	return newTestServiceWith(t, registry, notify.NopAnnouncer{})
}

func newTestServiceWith(t *testing.T, registry *grader.Registry, announcer notify.Announcer) (*service.ScoringService, *repository.Repository) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.Team{},
		&models.Competitor{},
		&models.Problem{},
		&models.Submission{},
		&models.Window{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := repository.NewRepository(db)
	svc := service.NewScoringService(repo, registry, announcer, windowDuration)
	return svc, repo
}

func createTeamWithCompetitor(t *testing.T, repo *repository.Repository, name string) (*models.Team, *models.Competitor) {
	t.Helper()
	ctx := context.Background()

	team := &models.Team{Name: name}
	if err := repo.CreateTeam(ctx, team); err != nil {
		t.Fatalf("create team: %v", err)
	}
	competitor := &models.Competitor{Handle: name + "-player", TeamID: &team.ID}
	if err := repo.CreateCompetitor(ctx, competitor); err != nil {
		t.Fatalf("create competitor: %v", err)
	}
	return team, competitor
}

func createStaticProblem(t *testing.T, repo *repository.Repository, name string, points int, flag string) *models.Problem {
	t.Helper()
	problem := &models.Problem{
		Name:   name,
		Points: points,
		Grader: "static",
		Flag:   flag,
	}
	if err := repo.CreateProblem(context.Background(), problem); err != nil {
		t.Fatalf("create problem: %v", err)
	}
	return problem
}

func ledgerRows(t *testing.T, repo *repository.Repository) []models.Submission {
	t.Helper()
	subs, err := repo.ListSubmissions(context.Background(), 500, 0)
	if err != nil {
		t.Fatalf("list submissions: %v", err)
	}
	return subs
}

func TestFirstCorrectSubmissionScoresOnce(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	team, competitor := createTeamWithCompetitor(t, repo, "polygl0ts")
	problem := createStaticProblem(t, repo, "baby-rev", 100, "flag{baby}")

	if err := svc.StartWindow(ctx, team.ID, now); err != nil {
		t.Fatalf("start window: %v", err)
	}

	result, err := svc.Submit(ctx, competitor.ID, problem.ID, "flag{baby}", now)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("first correct submission rejected: %+v", result)
	}

	score, err := svc.TeamScore(ctx, team.ID)
	if err != nil {
		t.Fatalf("team score: %v", err)
	}
	if score != 100 {
		t.Errorf("score = %d, want 100", score)
	}

	// Second submission of the same correct flag must not score again.
	result, err = svc.Submit(ctx, competitor.ID, problem.ID, "flag{baby}", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if result.Accepted {
		t.Error("second correct submission accepted")
	}
	if result.Message != "Your team has already solved this problem!" {
		t.Errorf("message = %q", result.Message)
	}

	score, _ = svc.TeamScore(ctx, team.ID)
	if score != 100 {
		t.Errorf("score after replay = %d, want 100", score)
	}

	rows := ledgerRows(t, repo)
	if len(rows) != 2 {
		t.Fatalf("ledger rows = %d, want 2", len(rows))
	}
}

func TestEmptyFlagNeverRecorded(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	team, competitor := createTeamWithCompetitor(t, repo, "emptyhands")
	problem := createStaticProblem(t, repo, "warmup", 50, "flag{warm}")

	if err := svc.StartWindow(ctx, team.ID, now); err != nil {
		t.Fatalf("start window: %v", err)
	}

	result, err := svc.Submit(ctx, competitor.ID, problem.ID, "", now)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Accepted {
		t.Error("empty flag accepted")
	}
	if result.Message != "Empty flag" {
		t.Errorf("message = %q, want %q", result.Message, "Empty flag")
	}
	if rows := ledgerRows(t, repo); len(rows) != 0 {
		t.Errorf("ledger rows = %d, want 0", len(rows))
	}
}

func TestUnknownProblemLeavesNoTrace(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	team, competitor := createTeamWithCompetitor(t, repo, "lostteam")
	if err := svc.StartWindow(ctx, team.ID, time.Now()); err != nil {
		t.Fatalf("start window: %v", err)
	}

	_, err := svc.Submit(ctx, competitor.ID, uuid.New(), "flag{ghost}", time.Now())
	if !errors.Is(err, service.ErrProblemNotFound) {
		t.Fatalf("err = %v, want ErrProblemNotFound", err)
	}
	if rows := ledgerRows(t, repo); len(rows) != 0 {
		t.Errorf("ledger rows = %d, want 0", len(rows))
	}
}

func TestWrongFlagsRecordedWithoutScoring(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	team, competitor := createTeamWithCompetitor(t, repo, "guessers")
	problem := createStaticProblem(t, repo, "pwn-me", 200, "flag{real}")

	if err := svc.StartWindow(ctx, team.ID, now); err != nil {
		t.Fatalf("start window: %v", err)
	}

	for _, flag := range []string{"flag{fake1}", "flag{fake2}"} {
		result, err := svc.Submit(ctx, competitor.ID, problem.ID, flag, now)
		if err != nil {
			t.Fatalf("submit %q: %v", flag, err)
		}
		if result.Accepted {
			t.Errorf("wrong flag %q accepted", flag)
		}
	}

	score, _ := svc.TeamScore(ctx, team.ID)
	if score != 0 {
		t.Errorf("score = %d, want 0", score)
	}

	rows := ledgerRows(t, repo)
	if len(rows) != 2 {
		t.Fatalf("ledger rows = %d, want 2", len(rows))
	}
	for _, row := range rows {
		if row.Correct == nil || *row.Correct {
			t.Errorf("wrong attempt not recorded as incorrect: %+v", row)
		}
	}
}

func TestReplayedWrongFlagShortCircuits(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	team, competitor := createTeamWithCompetitor(t, repo, "replayers")
	problem := createStaticProblem(t, repo, "web-easy", 100, "flag{real}")

	if err := svc.StartWindow(ctx, team.ID, now); err != nil {
		t.Fatalf("start window: %v", err)
	}

	if _, err := svc.Submit(ctx, competitor.ID, problem.ID, "flag{fake}", now); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	result, err := svc.Submit(ctx, competitor.ID, problem.ID, "flag{fake}", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if result.Message != "You or someone on your team has already tried this flag!" {
		t.Errorf("message = %q", result.Message)
	}

	rows := ledgerRows(t, repo)
	if len(rows) != 2 {
		t.Fatalf("ledger rows = %d, want 2", len(rows))
	}
	// The short-circuited attempt stays ungraded.
	if rows[0].Correct != nil {
		t.Errorf("short-circuited attempt graded: %+v", rows[0])
	}
}

func TestWindowGatesSubmission(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	team, competitor := createTeamWithCompetitor(t, repo, "latecomers")
	problem := createStaticProblem(t, repo, "timed", 100, "flag{tick}")

	// No window started yet.
	status, err := svc.WindowStatus(ctx, team.ID, now)
	if err != nil {
		t.Fatalf("window status: %v", err)
	}
	if status != service.WindowNotStarted {
		t.Errorf("status = %q, want not_started", status)
	}

	result, err := svc.Submit(ctx, competitor.ID, problem.ID, "flag{tick}", now)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Accepted {
		t.Error("submission accepted outside window")
	}
	if result.Message != "Your team's submission window is not active" {
		t.Errorf("message = %q", result.Message)
	}
	if rows := ledgerRows(t, repo); len(rows) != 0 {
		t.Errorf("ledger rows = %d, want 0", len(rows))
	}

	if err := svc.StartWindow(ctx, team.ID, now); err != nil {
		t.Fatalf("start window: %v", err)
	}
	status, _ = svc.WindowStatus(ctx, team.ID, now)
	if status != service.WindowActive {
		t.Errorf("status = %q, want active", status)
	}

	status, _ = svc.WindowStatus(ctx, team.ID, now.Add(windowDuration+time.Second))
	if status != service.WindowExpired {
		t.Errorf("status = %q, want expired", status)
	}

	// Inside the window the same flag now scores.
	result, err = svc.Submit(ctx, competitor.ID, problem.ID, "flag{tick}", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("submit in window: %v", err)
	}
	if !result.Accepted {
		t.Errorf("submission rejected inside window: %+v", result)
	}
}

func TestStartWindowExtendsExisting(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	team, _ := createTeamWithCompetitor(t, repo, "extenders")

	if err := svc.StartWindow(ctx, team.ID, now); err != nil {
		t.Fatalf("start window: %v", err)
	}
	if err := svc.StartWindow(ctx, team.ID, now.Add(30*time.Minute)); err != nil {
		t.Fatalf("restart window: %v", err)
	}

	window, err := repo.GetWindow(ctx, team.ID)
	if err != nil {
		t.Fatalf("get window: %v", err)
	}
	wantEnd := now.Add(30 * time.Minute).Add(windowDuration)
	if !window.EndsAt.Equal(wantEnd) {
		t.Errorf("EndsAt = %v, want %v", window.EndsAt, wantEnd)
	}

	status, _ := svc.WindowStatus(ctx, team.ID, now.Add(time.Hour))
	if status != service.WindowActive {
		t.Errorf("status after extension = %q, want active", status)
	}
}

func TestConcurrentSolvesDoNotLoseIncrements(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	team, competitor := createTeamWithCompetitor(t, repo, "swarm")
	if err := svc.StartWindow(ctx, team.ID, now); err != nil {
		t.Fatalf("start window: %v", err)
	}

	const n = 8
	total := 0
	problems := make([]*models.Problem, n)
	for i := range problems {
		points := 100 + i
		problems[i] = createStaticProblem(t, repo, fmt.Sprintf("chal-%d", i), points, fmt.Sprintf("flag{chal%d}", i))
		total += points
	}

	var wg sync.WaitGroup
	for i, problem := range problems {
		wg.Add(1)
		go func(i int, problem *models.Problem) {
			defer wg.Done()
			result, err := svc.Submit(ctx, competitor.ID, problem.ID, fmt.Sprintf("flag{chal%d}", i), now)
			if err != nil {
				t.Errorf("submit %d: %v", i, err)
				return
			}
			if !result.Accepted {
				t.Errorf("submission %d rejected: %+v", i, result)
			}
		}(i, problem)
	}
	wg.Wait()

	score, err := svc.TeamScore(ctx, team.ID)
	if err != nil {
		t.Fatalf("team score: %v", err)
	}
	if score != total {
		t.Errorf("score = %d, want %d", score, total)
	}
}

func TestSimultaneousCorrectFlagScoresOnce(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	team, competitor := createTeamWithCompetitor(t, repo, "racers")
	problem := createStaticProblem(t, repo, "raceme", 100, "flag{race}")
	if err := svc.StartWindow(ctx, team.ID, now); err != nil {
		t.Fatalf("start window: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Submit(ctx, competitor.ID, problem.ID, "flag{race}", now)
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			if result.Accepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Errorf("accepted = %d, want exactly 1", accepted)
	}
	score, _ := svc.TeamScore(ctx, team.ID)
	if score != 100 {
		t.Errorf("score = %d, want 100", score)
	}
}

func TestPointsEditIsNotRetroactive(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	teamA, competitorA := createTeamWithCompetitor(t, repo, "early birds")
	teamB, competitorB := createTeamWithCompetitor(t, repo, "late birds")
	problem := createStaticProblem(t, repo, "repriced", 100, "flag{price}")

	for _, team := range []*models.Team{teamA, teamB} {
		if err := svc.StartWindow(ctx, team.ID, now); err != nil {
			t.Fatalf("start window: %v", err)
		}
	}

	if _, err := svc.Submit(ctx, competitorA.ID, problem.ID, "flag{price}", now); err != nil {
		t.Fatalf("submit A: %v", err)
	}

	problem.Points = 500
	if err := repo.UpdateProblem(ctx, problem); err != nil {
		t.Fatalf("update problem: %v", err)
	}

	if _, err := svc.Submit(ctx, competitorB.ID, problem.ID, "flag{price}", now.Add(time.Minute)); err != nil {
		t.Fatalf("submit B: %v", err)
	}

	scoreA, _ := svc.TeamScore(ctx, teamA.ID)
	scoreB, _ := svc.TeamScore(ctx, teamB.ID)
	if scoreA != 100 {
		t.Errorf("early solver score = %d, want 100", scoreA)
	}
	if scoreB != 500 {
		t.Errorf("late solver score = %d, want 500", scoreB)
	}
}

func TestGraderFailureLeavesSubmissionUngraded(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	team, competitor := createTeamWithCompetitor(t, repo, "unlucky")
	problem := &models.Problem{
		Name:   "exotic",
		Points: 300,
		Grader: "qemu:boot.img",
	}
	if err := repo.CreateProblem(ctx, problem); err != nil {
		t.Fatalf("create problem: %v", err)
	}
	if err := svc.StartWindow(ctx, team.ID, now); err != nil {
		t.Fatalf("start window: %v", err)
	}

	_, err := svc.Submit(ctx, competitor.ID, problem.ID, "flag{try}", now)
	var loadErr *grader.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("err = %v, want LoadError", err)
	}

	rows := ledgerRows(t, repo)
	if len(rows) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(rows))
	}
	if rows[0].Correct != nil {
		t.Errorf("failed grading marked the attempt: %+v", rows[0])
	}
	score, _ := svc.TeamScore(ctx, team.ID)
	if score != 0 {
		t.Errorf("score = %d, want 0", score)
	}
}

// flakyGrader fails a fixed number of calls before grading normally.
type flakyGrader struct {
	mu       sync.Mutex
	failures int
	flag     string
}

func (g *flakyGrader) Grade(ctx context.Context, req grader.Request) (grader.Verdict, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failures > 0 {
		g.failures--
		return grader.Verdict{}, &grader.ExecError{Ref: req.Problem.Grader, Err: errors.New("grading backend unreachable")}
	}
	if req.Flag == g.flag {
		return grader.Verdict{Correct: true, Message: "Correct!"}, nil
	}
	return grader.Verdict{Correct: false, Message: "Wrong flag"}, nil
}

func TestRetryAfterGraderOutageScores(t *testing.T) {
	registry := grader.NewRegistry(2 * time.Second)
	registry.Register("flaky", &flakyGrader{failures: 1, flag: "flag{retry}"})
	svc, repo := newTestServiceWith(t, registry, notify.NopAnnouncer{})
	ctx := context.Background()
	now := time.Now()

	team, competitor := createTeamWithCompetitor(t, repo, "persistent")
	problem := &models.Problem{Name: "flaky-chal", Points: 300, Grader: "flaky"}
	if err := repo.CreateProblem(ctx, problem); err != nil {
		t.Fatalf("create problem: %v", err)
	}
	if err := svc.StartWindow(ctx, team.ID, now); err != nil {
		t.Fatalf("start window: %v", err)
	}

	_, err := svc.Submit(ctx, competitor.ID, problem.ID, "flag{retry}", now)
	var execErr *grader.ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("err = %v, want ExecError", err)
	}

	// The outage must not poison the flag: the retry is graded and scores.
	result, err := svc.Submit(ctx, competitor.ID, problem.ID, "flag{retry}", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("retried flag rejected: %+v", result)
	}
	score, _ := svc.TeamScore(ctx, team.ID)
	if score != 300 {
		t.Errorf("score = %d, want 300", score)
	}

	rows := ledgerRows(t, repo)
	if len(rows) != 2 {
		t.Fatalf("ledger rows = %d, want 2", len(rows))
	}
}

type recordingAnnouncer struct {
	ch chan string
}

func (a *recordingAnnouncer) AnnounceSolve(team, problem string, points int) {
	a.ch <- fmt.Sprintf("%s/%s/%d", team, problem, points)
}

func TestSolveIsAnnounced(t *testing.T) {
	registry := grader.NewRegistry(2 * time.Second)
	registry.Register("static", grader.NewStaticGrader())
	announcer := &recordingAnnouncer{ch: make(chan string, 1)}
	svc, repo := newTestServiceWith(t, registry, announcer)
	ctx := context.Background()
	now := time.Now()

	team, competitor := createTeamWithCompetitor(t, repo, "loudteam")
	problem := createStaticProblem(t, repo, "announced", 100, "flag{loud}")
	if err := svc.StartWindow(ctx, team.ID, now); err != nil {
		t.Fatalf("start window: %v", err)
	}

	result, err := svc.Submit(ctx, competitor.ID, problem.ID, "flag{loud}", now)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("submission rejected: %+v", result)
	}

	select {
	case got := <-announcer.ch:
		want := "loudteam/announced/100"
		if got != want {
			t.Errorf("announcement = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Error("solve was never announced")
	}
}

func TestSubmissionKeepsTeamSnapshot(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	teamA, competitor := createTeamWithCompetitor(t, repo, "origin")
	teamB := &models.Team{Name: "destination"}
	if err := repo.CreateTeam(ctx, teamB); err != nil {
		t.Fatalf("create team: %v", err)
	}
	problem := createStaticProblem(t, repo, "snapshot", 100, "flag{snap}")
	if err := svc.StartWindow(ctx, teamA.ID, now); err != nil {
		t.Fatalf("start window: %v", err)
	}

	if _, err := svc.Submit(ctx, competitor.ID, problem.ID, "flag{wrong}", now); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := repo.AssignCompetitorTeam(ctx, competitor.ID, &teamB.ID); err != nil {
		t.Fatalf("reassign: %v", err)
	}

	rows := ledgerRows(t, repo)
	if len(rows) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(rows))
	}
	if rows[0].TeamID == nil || *rows[0].TeamID != teamA.ID {
		t.Errorf("submission re-pointed away from original team: %+v", rows[0])
	}
}

func TestSubmissionSurvivesProblemDeletion(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	team, competitor := createTeamWithCompetitor(t, repo, "archivists")
	problem := createStaticProblem(t, repo, "ephemeral", 100, "flag{gone}")
	if err := svc.StartWindow(ctx, team.ID, now); err != nil {
		t.Fatalf("start window: %v", err)
	}

	if _, err := svc.Submit(ctx, competitor.ID, problem.ID, "flag{gone}", now); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := repo.DeleteProblem(ctx, problem.ID); err != nil {
		t.Fatalf("delete problem: %v", err)
	}

	rows := ledgerRows(t, repo)
	if len(rows) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(rows))
	}
	if rows[0].ProblemUID != problem.ID {
		t.Errorf("historical problem id lost: %+v", rows[0])
	}
	score, _ := svc.TeamScore(ctx, team.ID)
	if score != 100 {
		t.Errorf("score after deletion = %d, want 100", score)
	}
}
