// Package session exposes the resolution workflow over HTTP: open a session,
// resolve names, review pending matches, and run two-phase bulk batches.
package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/reqcontext"
	"github.com/Ramsey-B/sage/pkg/resolution"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

var validate = validator.New()

// Register registers session routes
func Register(g *echo.Group) {
	g.POST("", Open)
	g.GET("/:id", Get)
	g.DELETE("/:id", Close)
	g.POST("/:id/refresh", Refresh)
	g.POST("/:id/resolve", Resolve)
	g.GET("/:id/suggest", Suggest)
	g.GET("/:id/pending", Pending)
	g.POST("/:id/pending/:pending_id/decision", Decide)
	g.POST("/:id/batch", EvaluateBatch)
	g.POST("/:id/batch/commit", CommitBatch)
	g.GET("/:id/decisions/export", ExportDecisions)
	g.POST("/:id/decisions/import", ImportDecisions)
}

// OpenRequest is the request to open a resolution session
type OpenRequest struct {
	Table string `json:"table" validate:"required"`
}

// SessionResponse describes a live session
type SessionResponse struct {
	ID      string `json:"id"`
	Table   string `json:"table"`
	Version string `json:"version"`
	Pending int    `json:"pending"`
}

// Open opens a resolution session pinned to the table's current snapshot
func Open(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.Open")
	defer span.End()

	var req OpenRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, orch, err := ectoinject.GetContext[*resolution.Orchestrator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get orchestrator")
	}

	s, err := orch.Sessions().Open(ctx, strings.TrimSpace(req.Table))
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to open session")
	}

	return c.JSON(http.StatusCreated, sessionResponse(s))
}

// Get returns a session's state
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.Get")
	defer span.End()

	_, s, httpErr := getSession(ctx, c)
	if httpErr != nil {
		return httpErr
	}
	return c.JSON(http.StatusOK, sessionResponse(s))
}

// Close discards a session and everything it held in memory
func Close(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.Close")
	defer span.End()

	orch, s, httpErr := getSession(ctx, c)
	if httpErr != nil {
		return httpErr
	}
	orch.Sessions().Close(s.ID)
	return c.NoContent(http.StatusNoContent)
}

// Refresh reloads the session's reference snapshot
func Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.Refresh")
	defer span.End()

	orch, s, httpErr := getSession(ctx, c)
	if httpErr != nil {
		return httpErr
	}
	if err := orch.Sessions().Refresh(ctx, s); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to refresh session")
	}
	return c.JSON(http.StatusOK, sessionResponse(s))
}

// Resolve runs one input through the resolution state machine
func Resolve(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.Resolve")
	defer span.End()

	orch, s, httpErr := getSession(ctx, c)
	if httpErr != nil {
		return httpErr
	}

	var input models.ResolutionInput
	if err := c.Bind(&input); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(input); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	applyActor(ctx, &input)

	outcome, err := orch.Resolve(ctx, s, input)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve input")
	}
	return c.JSON(http.StatusOK, outcome)
}

// Suggest returns the top similar names for interactive display
func Suggest(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.Suggest")
	defer span.End()

	orch, s, httpErr := getSession(ctx, c)
	if httpErr != nil {
		return httpErr
	}

	name := c.QueryParam("name")
	if strings.TrimSpace(name) == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "name query parameter is required")
	}

	candidates := orch.Suggest(ctx, s, name)
	return c.JSON(http.StatusOK, map[string]any{
		"name":       name,
		"candidates": candidates,
	})
}

// Pending lists the session's unresolved review items
func Pending(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.Pending")
	defer span.End()

	_, s, httpErr := getSession(ctx, c)
	if httpErr != nil {
		return httpErr
	}

	items := s.Pending()
	return c.JSON(http.StatusOK, map[string]any{
		"items":       items,
		"total_count": len(items),
	})
}

// Decide applies a reviewer's decision to a pending item
func Decide(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.Decide")
	defer span.End()

	orch, s, httpErr := getSession(ctx, c)
	if httpErr != nil {
		return httpErr
	}

	var decision models.Decision
	if err := c.Bind(&decision); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(decision); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	outcome, err := orch.Decide(ctx, s, c.Param("pending_id"), decision)
	if err != nil {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, outcome)
}

// BatchRequest is the request for a bulk evaluation
type BatchRequest struct {
	Inputs []models.ResolutionInput `json:"inputs" validate:"required,min=1,dive"`
}

// EvaluateBatch runs the read-only phase of a bulk resolution
func EvaluateBatch(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.EvaluateBatch")
	defer span.End()

	orch, s, httpErr := getSession(ctx, c)
	if httpErr != nil {
		return httpErr
	}

	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	for i := range req.Inputs {
		applyActor(ctx, &req.Inputs[i])
	}

	result, err := orch.EvaluateBatch(ctx, s, req.Inputs)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to evaluate batch")
	}
	return c.JSON(http.StatusOK, result)
}

// CommitBatch runs the write phase of the evaluated batch
func CommitBatch(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.CommitBatch")
	defer span.End()

	orch, s, httpErr := getSession(ctx, c)
	if httpErr != nil {
		return httpErr
	}

	result, err := orch.CommitBatch(ctx, s)
	if err != nil {
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// ExportDecisions renders pending items as a reviewable decision table
func ExportDecisions(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.ExportDecisions")
	defer span.End()

	orch, s, httpErr := getSession(ctx, c)
	if httpErr != nil {
		return httpErr
	}

	rows := orch.ExportDecisions(s)
	return c.JSON(http.StatusOK, map[string]any{
		"rows":        rows,
		"total_count": len(rows),
	})
}

// ImportDecisionsRequest carries a bulk-reviewed decision table
type ImportDecisionsRequest struct {
	Rows []models.StandardizationDecisionRow `json:"rows" validate:"required,min=1"`
}

// ImportDecisions applies a bulk-reviewed decision table
func ImportDecisions(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "session_handler.ImportDecisions")
	defer span.End()

	orch, s, httpErr := getSession(ctx, c)
	if httpErr != nil {
		return httpErr
	}

	var req ImportDecisionsRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	outcomes, err := orch.ImportDecisions(ctx, s, req.Rows)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to import decisions")
	}
	return c.JSON(http.StatusOK, map[string]any{"outcomes": outcomes})
}

func sessionResponse(s *resolution.Session) SessionResponse {
	return SessionResponse{
		ID:      s.ID,
		Table:   s.Table,
		Version: s.Version(),
		Pending: len(s.Pending()),
	}
}

func getSession(ctx context.Context, c echo.Context) (*resolution.Orchestrator, *resolution.Session, error) {
	_, orch, err := ectoinject.GetContext[*resolution.Orchestrator](ctx)
	if err != nil {
		return nil, nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get orchestrator")
	}
	s, ok := orch.Sessions().Get(c.Param("id"))
	if !ok {
		return nil, nil, httperror.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return orch, s, nil
}

func applyActor(ctx context.Context, input *models.ResolutionInput) {
	if input.Actor == "" {
		input.Actor = reqcontext.GetUserID(ctx)
	}
}
