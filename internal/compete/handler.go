package compete

import (
	"errors"
	"net/http"
	"time"

	"flagforge/internal/grader"
	"flagforge/internal/repository"
	"flagforge/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CompeteHandler struct {
	scoring *service.ScoringService
	repo    *repository.Repository
}

func NewCompeteHandler(scoring *service.ScoringService, repo *repository.Repository) *CompeteHandler {
	return &CompeteHandler{scoring: scoring, repo: repo}
}

func competitorID(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get("competitorID")
	if !exists {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw.(string))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid competitor ID"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *CompeteHandler) SubmitFlag(c *gin.Context) {
	id, ok := competitorID(c)
	if !ok {
		return
	}

	var req struct {
		ProblemID string `json:"problem_id" binding:"required"`
		Flag      string `json:"flag"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	problemID, err := uuid.Parse(req.ProblemID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid problem ID"})
		return
	}

	result, err := h.scoring.Submit(c.Request.Context(), id, problemID, req.Flag, time.Now())
	if err != nil {
		var loadErr *grader.LoadError
		var execErr *grader.ExecError
		switch {
		case errors.Is(err, service.ErrProblemNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Problem not found"})
		case errors.Is(err, service.ErrCompetitorNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown competitor"})
		case errors.Is(err, service.ErrNoTeam):
			c.JSON(http.StatusBadRequest, gin.H{"error": "You must join a team before submitting"})
		case errors.As(err, &loadErr), errors.As(err, &execErr):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Grading is temporarily unavailable, try again"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Submission failed"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *CompeteHandler) StartWindow(c *gin.Context) {
	id, ok := competitorID(c)
	if !ok {
		return
	}

	teamID, ok := h.resolveTeam(c, id)
	if !ok {
		return
	}

	if err := h.scoring.StartWindow(c.Request.Context(), teamID, time.Now()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start window"})
		return
	}

	status, err := h.scoring.WindowStatus(c.Request.Context(), teamID, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read window"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (h *CompeteHandler) WindowStatus(c *gin.Context) {
	id, ok := competitorID(c)
	if !ok {
		return
	}

	teamID, ok := h.resolveTeam(c, id)
	if !ok {
		return
	}

	status, err := h.scoring.WindowStatus(c.Request.Context(), teamID, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read window"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// ListProblems returns the problem list once the team's window has started.
// Flags and grader references never leave the server.
func (h *CompeteHandler) ListProblems(c *gin.Context) {
	id, ok := competitorID(c)
	if !ok {
		return
	}

	teamID, ok := h.resolveTeam(c, id)
	if !ok {
		return
	}

	viewable, err := h.scoring.ProblemsViewable(c.Request.Context(), teamID, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check window"})
		return
	}
	if !viewable {
		c.JSON(http.StatusForbidden, gin.H{"error": "Problems are not available until your window starts"})
		return
	}

	problems, err := h.repo.GetAllProblems(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list problems"})
		return
	}

	type problemItem struct {
		ID          uuid.UUID `json:"id"`
		Name        string    `json:"name"`
		Points      int       `json:"points"`
		Description string    `json:"description"`
		Hint        string    `json:"hint"`
	}
	items := make([]problemItem, 0, len(problems))
	for _, p := range problems {
		items = append(items, problemItem{
			ID:          p.ID,
			Name:        p.Name,
			Points:      p.Points,
			Description: p.Description,
			Hint:        p.Hint,
		})
	}
	c.JSON(http.StatusOK, gin.H{"total": len(items), "problems": items})
}

func (h *CompeteHandler) TeamScore(c *gin.Context) {
	teamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid team ID"})
		return
	}

	score, err := h.scoring.TeamScore(c.Request.Context(), teamID)
	if err != nil {
		if errors.Is(err, service.ErrTeamNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Team not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read score"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"team_id": teamID, "score": score})
}

func (h *CompeteHandler) Scoreboard(c *gin.Context) {
	teams, err := h.scoring.Scoreboard(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load scoreboard"})
		return
	}

	type entry struct {
		Rank  int       `json:"rank"`
		ID    uuid.UUID `json:"id"`
		Name  string    `json:"name"`
		Score int       `json:"score"`
	}
	entries := make([]entry, 0, len(teams))
	for i, t := range teams {
		entries = append(entries, entry{Rank: i + 1, ID: t.ID, Name: t.Name, Score: t.Score})
	}
	c.JSON(http.StatusOK, gin.H{"scoreboard": entries})
}

func (h *CompeteHandler) resolveTeam(c *gin.Context, id uuid.UUID) (uuid.UUID, bool) {
	competitor, err := h.repo.GetCompetitorByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown competitor"})
		return uuid.Nil, false
	}
	if competitor.TeamID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You must join a team first"})
		return uuid.Nil, false
	}
	return *competitor.TeamID, true
}
