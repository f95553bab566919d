// Package tableschema exposes CRUD for reference table schemas.
package tableschema

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sage/internal/repositories/tableschema"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/schema"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

var validate = validator.New()

// Register registers table schema routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.POST("", Create)
	g.GET("/:id", Get)
	g.PUT("/:id", Update)
}

// List lists all table schemas
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "tableschema_handler.List")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*tableschema.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get table schema repository")
	}

	schemas, err := repo.List(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to list table schemas")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"schemas":     schemas,
		"total_count": len(schemas),
	})
}

// Create creates a table schema
func Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "tableschema_handler.Create")
	defer span.End()

	var req models.CreateTableSchemaRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*tableschema.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get table schema repository")
	}

	created, err := repo.Create(ctx, req)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create table schema")
	}

	return c.JSON(http.StatusCreated, created)
}

// Get gets a table schema by id
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "tableschema_handler.Get")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*tableschema.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get table schema repository")
	}

	found, err := repo.GetByID(ctx, c.Param("id"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get table schema")
	}
	if found == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "table schema not found")
	}

	return c.JSON(http.StatusOK, found)
}

// UpdateRequest is the request to update a table schema's fields
type UpdateRequest struct {
	Fields []models.FieldDescriptor `json:"fields" validate:"required,min=1,dive"`
}

// Update replaces a table schema's field descriptors
func Update(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "tableschema_handler.Update")
	defer span.End()

	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*tableschema.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get table schema repository")
	}

	updated, err := repo.Update(ctx, c.Param("id"), req.Fields)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update table schema")
	}
	if updated == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "table schema not found")
	}

	// Cached validators are keyed by table name and must not outlive the old fields.
	if _, validation, err := ectoinject.GetContext[*schema.ValidationService](ctx); err == nil {
		validation.InvalidateCache(updated.Name)
	}

	return c.JSON(http.StatusOK, updated)
}
