package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/stackfolio/portfolio-rag/internal/domain"
	"github.com/stackfolio/portfolio-rag/internal/port"
	"github.com/stackfolio/portfolio-rag/internal/service"
	"github.com/stackfolio/portfolio-rag/internal/worker"
)

// ProjectHandler handles project CRUD.
type ProjectHandler struct {
	projects  port.ProjectStore
	processor *service.ProcessingService
	pool      *worker.Pool
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(projects port.ProjectStore, processor *service.ProcessingService, pool *worker.Pool) *ProjectHandler {
	return &ProjectHandler{projects: projects, processor: processor, pool: pool}
}

// Register sets up project routes.
func (h *ProjectHandler) Register(router fiber.Router) {
	projects := router.Group("/projects")
	projects.Post("/", h.Create)
	projects.Get("/", h.List)
	projects.Get("/:id", h.Get)
	projects.Delete("/:id", h.Delete)
}

// Create adds a new project. A linked repository URL queues ingestion right away.
func (h *ProjectHandler) Create(c fiber.Ctx) error {
	var body struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		TechStack   string `json:"tech_stack"`
		GitHubURL   string `json:"github_url"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(body.Title) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title is required"})
	}

	project := &domain.Project{
		Title:       strings.TrimSpace(body.Title),
		Description: body.Description,
		TechStack:   body.TechStack,
		GitHubURL:   strings.TrimSpace(body.GitHubURL),
	}
	if err := h.projects.CreateProject(c.Context(), project); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if project.GitHubURL != "" {
		projectID := project.ID
		if _, err := h.pool.Submit(projectID, func(ctx context.Context) {
			if err := h.processor.Process(ctx, projectID, false); err != nil {
				slog.Error("initial processing failed", "project_id", projectID, "error", err)
			}
		}); err != nil {
			slog.Warn("could not queue initial processing", "project_id", projectID, "error", err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(project)
}

// List returns all projects, newest first.
func (h *ProjectHandler) List(c fiber.Ctx) error {
	projects, err := h.projects.ListProjects(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"projects": projects, "count": len(projects)})
}

// Get returns one project by ID.
func (h *ProjectHandler) Get(c fiber.Ctx) error {
	project, err := h.projects.GetProject(c.Context(), c.Params("id"))
	if errors.Is(err, port.ErrProjectNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "project not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(project)
}

// Delete removes a project along with its processing record.
func (h *ProjectHandler) Delete(c fiber.Ctx) error {
	err := h.projects.DeleteProject(c.Context(), c.Params("id"))
	if errors.Is(err, port.ErrProjectNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "project not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "project deleted"})
}
