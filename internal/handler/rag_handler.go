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

// RAGHandler handles processing triggers, status polling and project chat.
type RAGHandler struct {
	projects  port.ProjectStore
	processor *service.ProcessingService
	rag       *service.RAGService
	pool      *worker.Pool
}

// NewRAGHandler creates a new RAG handler.
func NewRAGHandler(projects port.ProjectStore, processor *service.ProcessingService, rag *service.RAGService, pool *worker.Pool) *RAGHandler {
	return &RAGHandler{projects: projects, processor: processor, rag: rag, pool: pool}
}

// Register sets up RAG routes.
func (h *RAGHandler) Register(router fiber.Router) {
	projects := router.Group("/projects")
	projects.Post("/:id/rag/process", h.Process)
	projects.Get("/:id/rag/status", h.Status)
	projects.Post("/:id/discuss", h.Discuss)
}

// Process queues repository ingestion for a project. Returns 202 with a job ID,
// 200 when the project is already processed and force is not set, or 409 when a
// run is already in flight.
func (h *RAGHandler) Process(c fiber.Ctx) error {
	projectID := c.Params("id")

	project, err := h.projects.GetProject(c.Context(), projectID)
	if errors.Is(err, port.ErrProjectNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "project not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if project.GitHubURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "project has no repository url"})
	}

	var body struct {
		Force bool `json:"force"`
	}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}

	if !body.Force {
		rec, _, err := h.processor.Status(c.Context(), projectID)
		if err == nil && rec.Processed && rec.State == domain.StateCompleted {
			return c.JSON(fiber.Map{"message": "project already processed", "state": rec.State})
		}
	}

	force := body.Force
	jobID, err := h.pool.Submit(projectID, func(ctx context.Context) {
		if err := h.processor.Process(ctx, projectID, force); err != nil {
			slog.Error("processing failed", "project_id", projectID, "error", err)
		}
	})
	if errors.Is(err, worker.ErrBusy) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "processing already in progress"})
	}
	if errors.Is(err, worker.ErrQueueFull) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "processing queue is full"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message":    "processing started",
		"job_id":     jobID,
		"project_id": projectID,
	})
}

// Status reports the processing state of a project. A project that has never
// been processed reports the pending state.
func (h *RAGHandler) Status(c fiber.Ctx) error {
	projectID := c.Params("id")

	if _, err := h.projects.GetProject(c.Context(), projectID); err != nil {
		if errors.Is(err, port.ErrProjectNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "project not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	rec, numChunks, err := h.processor.Status(c.Context(), projectID)
	if errors.Is(err, port.ErrRecordNotFound) {
		return c.JSON(fiber.Map{
			"project_id": projectID,
			"state":      domain.StatePending,
			"progress":   0,
			"processed":  false,
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	resp := fiber.Map{
		"project_id": projectID,
		"state":      rec.State,
		"progress":   rec.Progress,
		"processed":  rec.Processed,
		"attempts":   rec.Attempts,
		"updated_at": rec.UpdatedAt,
	}
	if rec.LastError != "" {
		resp["last_error"] = rec.LastError
		resp["error_kind"] = rec.ErrorKind
	}
	if rec.State == domain.StateCompleted {
		resp["num_chunks"] = numChunks
	}
	return c.JSON(resp)
}

// Discuss answers a question about a project using its indexed repository.
func (h *RAGHandler) Discuss(c fiber.Ctx) error {
	projectID := c.Params("id")

	if _, err := h.projects.GetProject(c.Context(), projectID); err != nil {
		if errors.Is(err, port.ErrProjectNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "project not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	var body struct {
		Message string            `json:"message"`
		History []domain.ChatTurn `json:"history"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(body.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message is required"})
	}

	answer := h.rag.Ask(c.Context(), projectID, body.Message, body.History)
	return c.JSON(fiber.Map{"response": answer})
}
