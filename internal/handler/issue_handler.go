package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperrors "civicreport/internal/errors"
	"civicreport/internal/middleware"
	"civicreport/internal/model"
	"civicreport/internal/service"
)

// IssueHandler handles issue endpoints.
type IssueHandler struct {
	issueService service.IssueService
}

// NewIssueHandler creates a new issue handler.
func NewIssueHandler(issueService service.IssueService) *IssueHandler {
	return &IssueHandler{issueService: issueService}
}

// CreateIssueResponse is returned after an issue is stored.
type CreateIssueResponse struct {
	Success bool         `json:"success" example:"true"`
	Issue   *model.Issue `json:"issue"`
}

// ListIssues godoc
// @Summary List issues, newest first
// @Tags issues
// @Produce json
// @Success 200 {array} model.Issue
// @Failure 500 {object} errors.ErrorResponse
// @Router /issues [get]
func (h *IssueHandler) ListIssues(c echo.Context) error {
	issues, err := h.issueService.List(c.Request().Context())
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, issues)
}

// ListIssuesGeoJSON godoc
// @Summary Issues as a GeoJSON FeatureCollection
// @Tags issues
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} errors.ErrorResponse
// @Router /issues.geojson [get]
func (h *IssueHandler) ListIssuesGeoJSON(c echo.Context) error {
	fc, err := h.issueService.ListGeoJSON(c.Request().Context())
	if err != nil {
		return fail(err)
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/geo+json")
	return c.JSON(http.StatusOK, fc)
}

// CreateIssue godoc
// @Summary Report an issue
// @Tags issues
// @Accept multipart/form-data
// @Produce json
// @Security SessionToken
// @Param image formData file true "Photo (png, jpg, jpeg, gif, webp)"
// @Param issue_type formData string true "garbage, broken_footpath or blocked_footpath"
// @Param description formData string false "Free text"
// @Param latitude formData number true "Latitude in degrees"
// @Param longitude formData number true "Longitude in degrees"
// @Success 201 {object} CreateIssueResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 413 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /issues [post]
func (h *IssueHandler) CreateIssue(c echo.Context) error {
	claims, ok := middleware.Claims(c)
	if !ok {
		return fail(apperrors.ErrUnauthorized)
	}

	in := service.CreateIssueInput{
		UserID:      claims.UserID,
		Type:        c.FormValue("issue_type"),
		Description: c.FormValue("description"),
		Latitude:    c.FormValue("latitude"),
		Longitude:   c.FormValue("longitude"),
	}

	fh, err := c.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return badRequest("invalid multipart form")
	default:
		file, err := fh.Open()
		if err != nil {
			return fail(err)
		}
		defer file.Close()
		in.Image = file
		in.ImageName = fh.Filename
		in.ImageSize = fh.Size
	}

	issue, err := h.issueService.Create(c.Request().Context(), in)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusCreated, CreateIssueResponse{Success: true, Issue: issue})
}

// ResolveIssue godoc
// @Summary Mark an issue resolved
// @Description Only the reporter may resolve an issue. Unknown issues are reported as forbidden.
// @Tags issues
// @Produce json
// @Security SessionToken
// @Param id path int true "Issue ID"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /issues/{id}/resolve [post]
func (h *IssueHandler) ResolveIssue(c echo.Context) error {
	claims, ok := middleware.Claims(c)
	if !ok {
		return fail(apperrors.ErrUnauthorized)
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return fail(apperrors.NewValidationError("id", "must be a positive integer"))
	}

	if err := h.issueService.Resolve(c.Request().Context(), uint(id), claims.UserID); err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}
