// Package standardization exposes name-to-canonical mappings: listing a
// table's mappings, resolving a raw name through the chain, and recording a
// mapping directly without going through a review session.
package standardization

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sage/internal/repositories/standardization"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/reqcontext"
	"github.com/Ramsey-B/sage/pkg/standardize"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

var validate = validator.New()

// Register registers standardization routes
func Register(g *echo.Group) {
	g.GET("/:table/mappings", List)
	g.POST("/:table/mappings", Create)
	g.GET("/:table/mappings/resolve", Resolve)
}

// List lists a table's standardization mappings
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "standardization_handler.List")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*standardization.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get standardization repository")
	}

	mappings, err := repo.List(ctx, c.Param("table"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to list mappings")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"mappings":    mappings,
		"total_count": len(mappings),
	})
}

// Create records a mapping directly
func Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "standardization_handler.Create")
	defer span.End()

	var req models.CreateMappingRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, mapper, err := ectoinject.GetContext[*standardize.Mapper](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get mapper")
	}

	actor := reqcontext.GetUserID(ctx)
	if actor == "" {
		actor = "system"
	}

	mapping, err := mapper.CreateMapping(ctx, c.Param("table"), req, actor)
	if err != nil {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	return c.JSON(http.StatusCreated, mapping)
}

// Resolve follows the mapping chain for a raw name
func Resolve(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "standardization_handler.Resolve")
	defer span.End()

	name := c.QueryParam("name")
	if strings.TrimSpace(name) == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "name query parameter is required")
	}

	ctx, mapper, err := ectoinject.GetContext[*standardize.Mapper](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get mapper")
	}

	mapping, err := mapper.Resolve(ctx, c.Param("table"), name)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve name")
	}
	if mapping == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "no mapping found")
	}

	return c.JSON(http.StatusOK, mapping)
}
