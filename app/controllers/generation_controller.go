package controllers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/supuni9622/ModelSnap/app/models"
	"github.com/supuni9622/ModelSnap/app/repository"
	"github.com/supuni9622/ModelSnap/internal/pkg/tryon"
	"github.com/supuni9622/ModelSnap/internal/pkg/usercontext"
)

type createGenerationRequest struct {
	SubjectType string `json:"subject_type"`
	SubjectID   uint   `json:"subject_id"`
	GarmentURL  string `json:"garment_url"`
}

type generationResponse struct {
	RequestID     string `json:"request_id"`
	Status        string `json:"status"`
	SubjectType   string `json:"subject_type"`
	SubjectID     uint   `json:"subject_id"`
	GarmentURL    string `json:"garment_url"`
	OutputURL     string `json:"output_url,omitempty"`
	FailureCode   string `json:"failure_code,omitempty"`
	FailureDetail string `json:"failure_detail,omitempty"`
	RetryCount    int    `json:"retry_count"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func toGenerationResponse(req *models.GenerationRequest) generationResponse {
	return generationResponse{
		RequestID:     req.UUID,
		Status:        req.Status,
		SubjectType:   req.SubjectType,
		SubjectID:     req.SubjectID,
		GarmentURL:    req.GarmentURL,
		OutputURL:     req.OutputURL,
		FailureCode:   req.FailureCode,
		FailureDetail: req.FailureDetail,
		RetryCount:    req.RetryCount,
		CreatedAt:     req.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt:     req.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// HandleCreateGeneration submits a new try-on render request.
func HandleCreateGeneration(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Authentication required")
	}

	var body createGenerationRequest
	if err := c.BodyParser(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_error", "Invalid request body")
	}

	req, err := getGenerationService().Submit(c.Context(), tryon.SubmitInput{
		UserID:      userCtx.UserID,
		SubjectType: strings.ToLower(strings.TrimSpace(body.SubjectType)),
		SubjectID:   body.SubjectID,
		GarmentURL:  strings.TrimSpace(body.GarmentURL),
	})
	if err != nil {
		return mapSubmitError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(toGenerationResponse(req))
}

// HandleGetGeneration returns one of the caller's generation requests.
func HandleGetGeneration(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Authentication required")
	}

	req, err := getGenerationService().Get(c.Context(), c.Params("uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Generation request not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Lookup failed")
	}
	if req.UserID != userCtx.UserID && !userCtx.IsAdmin {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Generation request not found")
	}

	return c.JSON(toGenerationResponse(req))
}

// HandleListGenerations returns the caller's generation requests, newest first.
func HandleListGenerations(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Authentication required")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	repo := repository.GetGlobalFactory().GetGenerationRepository()
	reqs, err := repo.ListByUserID(userCtx.UserID, (page-1)*limit, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Listing failed")
	}
	total, err := repo.CountByUserID(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Listing failed")
	}

	items := make([]generationResponse, 0, len(reqs))
	for i := range reqs {
		items = append(items, toGenerationResponse(&reqs[i]))
	}
	return c.JSON(fiber.Map{
		"generations": items,
		"page":        page,
		"limit":       limit,
		"total":       total,
	})
}

// HandleRetryGeneration re-opens a failed request with a fresh attempt series.
func HandleRetryGeneration(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Authentication required")
	}

	req, err := getGenerationService().Retry(c.Context(), c.Params("uuid"), userCtx.UserID)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, tryon.ErrNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", "Generation request not found")
		case errors.Is(err, tryon.ErrNotRetryable):
			return jsonError(c, fiber.StatusConflict, "not_retryable", "Only failed requests can be retried")
		case errors.Is(err, tryon.ErrIneligible):
			return mapSubmitError(c, err)
		default:
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Retry failed")
		}
	}

	return c.JSON(toGenerationResponse(req))
}

func mapSubmitError(c *fiber.Ctx, err error) error {
	var vErr *tryon.ValidationError
	if errors.As(err, &vErr) {
		return jsonError(c, fiber.StatusBadRequest, "validation_error", vErr.Reason)
	}
	var iErr *tryon.IneligibleError
	if errors.As(err, &iErr) {
		code := "ineligible"
		if strings.Contains(iErr.Reason, "insufficient credit balance") {
			code = "insufficient_balance"
		}
		return jsonError(c, fiber.StatusUnprocessableEntity, code, iErr.Reason)
	}
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Submission failed")
}
