package admin

import (
	"net/http"
	"strconv"
	"time"

	"flagforge/internal/models"
	"flagforge/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type AdminHandler struct {
	repo         *repository.Repository
	adminUser    string
	passwordHash string
	jwtSecret    string
}

func NewAdminHandler(repo *repository.Repository, user, passwordHash, jwtSecret string) *AdminHandler {
	return &AdminHandler{
		repo:         repo,
		adminUser:    user,
		passwordHash: passwordHash,
		jwtSecret:    jwtSecret,
	}
}

func (h *AdminHandler) AdminLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if req.Username != h.adminUser ||
		bcrypt.CompareHashAndPassword([]byte(h.passwordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "admin",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour * 8).Unix(),
	})

	tokenString, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": tokenString})
}

func (h *AdminHandler) CreateProblem(c *gin.Context) {
	var input struct {
		Name        string `json:"name" binding:"required"`
		Points      int    `json:"points" binding:"required,gt=0"`
		Description string `json:"description"`
		Hint        string `json:"hint"`
		Grader      string `json:"grader" binding:"required"`
		Flag        string `json:"flag"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	problem := &models.Problem{
		Name:        input.Name,
		Points:      input.Points,
		Description: input.Description,
		Hint:        input.Hint,
		Grader:      input.Grader,
		Flag:        input.Flag,
	}

	if err := h.repo.CreateProblem(c.Request.Context(), problem); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create problem"})
		return
	}

	c.JSON(http.StatusCreated, problem)
}

func (h *AdminHandler) ListProblems(c *gin.Context) {
	problems, err := h.repo.GetAllProblems(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, problems)
}

// UpdateProblem edits a published problem. Points edits are not retroactive:
// prior solves keep the score they were awarded.
func (h *AdminHandler) UpdateProblem(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}

	var input struct {
		Name        string `json:"name"`
		Points      int    `json:"points"`
		Description string `json:"description"`
		Hint        string `json:"hint"`
		Grader      string `json:"grader"`
		Flag        string `json:"flag"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	problem, err := h.repo.GetProblemByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Problem not found"})
		return
	}

	if input.Name != "" {
		problem.Name = input.Name
	}
	if input.Points > 0 {
		problem.Points = input.Points
	}
	if input.Description != "" {
		problem.Description = input.Description
	}
	if input.Hint != "" {
		problem.Hint = input.Hint
	}
	if input.Grader != "" {
		problem.Grader = input.Grader
	}
	if input.Flag != "" {
		problem.Flag = input.Flag
	}

	if err := h.repo.UpdateProblem(c.Request.Context(), problem); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "problem": problem})
}

func (h *AdminHandler) DeleteProblem(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}

	if err := h.repo.DeleteProblem(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *AdminHandler) CreateTeam(c *gin.Context) {
	var input struct {
		Name string `json:"name" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	team := &models.Team{Name: input.Name}
	if err := h.repo.CreateTeam(c.Request.Context(), team); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Failed to create team"})
		return
	}

	c.JSON(http.StatusCreated, team)
}

func (h *AdminHandler) RenameTeam(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}

	var input struct {
		Name string `json:"name" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	team, err := h.repo.GetTeamByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Team not found"})
		return
	}

	team.Name = input.Name
	if err := h.repo.UpdateTeam(c.Request.Context(), team); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "renamed", "team": team})
}

func (h *AdminHandler) DeleteTeam(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}

	if err := h.repo.DeleteTeam(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *AdminHandler) CreateCompetitor(c *gin.Context) {
	var input struct {
		Handle string `json:"handle" binding:"required"`
		TeamID string `json:"team_id"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	competitor := &models.Competitor{Handle: input.Handle}
	if input.TeamID != "" {
		teamID, err := uuid.Parse(input.TeamID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid team ID"})
			return
		}
		if _, err := h.repo.GetTeamByID(c.Request.Context(), teamID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Team not found"})
			return
		}
		competitor.TeamID = &teamID
	}

	if err := h.repo.CreateCompetitor(c.Request.Context(), competitor); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Failed to create competitor"})
		return
	}

	c.JSON(http.StatusCreated, competitor)
}

// AssignTeam moves a competitor to a team, or off any team when team_id is
// empty. Historical submissions keep the team they were made under.
func (h *AdminHandler) AssignTeam(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}

	var input struct {
		TeamID string `json:"team_id"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.repo.GetCompetitorByID(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Competitor not found"})
		return
	}

	var teamID *uuid.UUID
	if input.TeamID != "" {
		parsed, err := uuid.Parse(input.TeamID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid team ID"})
			return
		}
		if _, err := h.repo.GetTeamByID(c.Request.Context(), parsed); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Team not found"})
			return
		}
		teamID = &parsed
	}

	if err := h.repo.AssignCompetitorTeam(c.Request.Context(), id, teamID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "assigned"})
}

// MintCompetitorToken issues a bearer token for a competitor. Competitor
// registration and login screens live outside this service.
func (h *AdminHandler) MintCompetitorToken(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}

	competitor, err := h.repo.GetCompetitorByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Competitor not found"})
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  competitor.ID.String(),
		"role": "competitor",
		"exp":  time.Now().Add(time.Hour * 24).Unix(),
	})

	tokenString, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": tokenString})
}

func (h *AdminHandler) ListSubmissions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	subs, err := h.repo.ListSubmissions(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": len(subs), "submissions": subs})
}
