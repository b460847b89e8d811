package review

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"reviewforge/internal/core/job"
	"reviewforge/internal/logger"
	"reviewforge/internal/platform/tasks"
	"reviewforge/internal/types"
)

type Handler struct {
	service    *Service
	jobs       *job.Service
	tasks      *tasks.Client
	maxRetries int
	log        *logger.Logger
}

func NewHandler(service *Service, jobs *job.Service, taskClient *tasks.Client, maxRetries int) *Handler {
	return &Handler{service: service, jobs: jobs, tasks: taskClient, maxRetries: maxRetries, log: logger.New("ReviewHandler")}
}

// HandleCompose runs a composition synchronously.
func (h *Handler) HandleCompose(c *fiber.Ctx) error {
	var in types.UserInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid body"})
	}

	review, err := h.service.Compose(c.Context(), in)
	if err != nil {
		return h.composeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "review": review})
}

type refineRequest struct {
	Comment string `json:"comment"`
}

// HandleRefine folds an additional comment into an existing review session.
func (h *Handler) HandleRefine(c *fiber.Ctx) error {
	id := c.Params("reviewId")
	var req refineRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid body"})
	}

	review, err := h.service.Refine(c.Context(), id, req.Comment)
	if err != nil {
		return h.composeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "review": review})
}

// HandleDiscard drops the refinement session for a composed review.
func (h *Handler) HandleDiscard(c *fiber.Ctx) error {
	if err := h.service.Discard(c.Context(), c.Params("reviewId")); err != nil {
		return h.composeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// composeTaskPayload is the asynq task body for background compositions.
type composeTaskPayload struct {
	JobID string          `json:"job_id"`
	Input types.UserInput `json:"input"`
}

// HandleCreateJob enqueues a composition as a background job and returns its
// ID immediately.
func (h *Handler) HandleCreateJob(c *fiber.Ctx) error {
	var in types.UserInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid body"})
	}

	jobID := uuid.New().String()
	payload, err := json.Marshal(composeTaskPayload{JobID: jobID, Input: in})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "failed to encode task"})
	}
	if err := h.jobs.InitPending(c.Context(), jobID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "failed to register job"})
	}
	if err := h.tasks.Enqueue(asynq.NewTask(tasks.TaskTypeCompose, payload), "default", h.maxRetries); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "failed to enqueue job"})
	}
	return c.JSON(fiber.Map{"success": true, "job_id": jobID})
}

// HandleGetJob reports the status (and, when finished, the result) of a
// background composition.
func (h *Handler) HandleGetJob(c *fiber.Ctx) error {
	id := c.Params("jobId")
	j, err := h.jobs.GetStatus(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "not_found"})
	}

	resp := fiber.Map{"success": true, "job_id": id, "status": string(j.Status)}
	if j.Status == job.StatusCompleted && j.Results.Review != nil {
		resp["review"] = j.Results.Review
	}
	if j.Status == job.StatusFailed && j.Results.Error != "" {
		resp["error"] = j.Results.Error
	}
	return c.JSON(resp)
}

// HandleComposeTask is the asynq worker entrypoint for background
// compositions. Failures are recorded on the job rather than retried: the
// caller polls and resubmits if they want another attempt.
func (h *Handler) HandleComposeTask(ctx context.Context, t *asynq.Task) error {
	var payload composeTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.LogErrorf("malformed compose task payload: %v", err)
		return nil
	}

	if err := h.jobs.SetProcessing(ctx, payload.JobID); err != nil {
		h.log.LogWarnf("failed to mark job %s processing: %v", payload.JobID, err)
	}

	review, err := h.service.Compose(ctx, payload.Input)
	if err != nil {
		h.log.LogErrorf("compose job %s failed: %v", payload.JobID, err)
		if storeErr := h.jobs.Fail(ctx, payload.JobID, err.Error()); storeErr != nil {
			h.log.LogErrorf("failed to record job %s failure: %v", payload.JobID, storeErr)
		}
		return nil
	}
	return h.jobs.Complete(ctx, payload.JobID, review)
}

// composeError maps a composition failure onto an HTTP status.
func (h *Handler) composeError(c *fiber.Ctx, err error) error {
	var compErr *CompositionError
	if !errors.As(err, &compErr) {
		h.log.LogErrorf("unclassified composition error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	status := fiber.StatusInternalServerError
	switch compErr.Kind {
	case KindBadLink, KindBadInput:
		status = fiber.StatusBadRequest
	case KindSessionNotFound:
		status = fiber.StatusNotFound
	case KindProductFetch, KindGeneration:
		status = fiber.StatusBadGateway
	case KindMissingConfig:
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(fiber.Map{"success": false, "error": compErr.Message, "kind": string(compErr.Kind)})
}
