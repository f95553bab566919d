// Package record exposes read access to canonical reference records.
package record

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sage/internal/repositories/reference"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// Register registers record routes
func Register(g *echo.Group) {
	g.GET("/:table/records", List)
	g.GET("/:table/records/:id", Get)
}

// List lists a table's canonical records
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "record_handler.List")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*reference.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get reference repository")
	}

	table := c.Param("table")
	records, err := repo.List(ctx, table)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to list records")
	}

	return c.JSON(http.StatusOK, models.RecordListResponse{
		Items:      records,
		TotalCount: len(records),
	})
}

// Get gets a canonical record by id
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "record_handler.Get")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}

	ctx, repo, err := ectoinject.GetContext[*reference.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get reference repository")
	}

	record, err := repo.GetByID(ctx, c.Param("table"), id)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get record")
	}
	if record == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "record not found")
	}

	return c.JSON(http.StatusOK, record)
}
