// Package hierarchy exposes ownership-edge traversal for canonical records.
package hierarchy

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	hierarchysvc "github.com/Ramsey-B/sage/pkg/hierarchy"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// Register registers hierarchy routes
func Register(g *echo.Group) {
	g.GET("/:table/records/:id/children", Children)
	g.GET("/:table/records/:id/parents", Parents)
	g.GET("/:table/records/:id/tree", Tree)
	g.GET("/:table/records/:id/subtree", Subtree)
	g.GET("/:table/records/:id/ancestors", Ancestors)
	g.GET("/:table/records/:id/controlling-parent", ControllingParent)
	g.GET("/:table/records/:id/controlling-owners", ControllingOwners)
}

// Children lists a record's direct child edges
func Children(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "hierarchy_handler.Children")
	defer span.End()

	svc, id, httpErr := getService(c)
	if httpErr != nil {
		return httpErr
	}

	edges, err := svc.ListChildren(ctx, c.Param("table"), id)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to list children")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"edges":       edges,
		"total_count": len(edges),
	})
}

// Parents lists a record's direct parent edges
func Parents(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "hierarchy_handler.Parents")
	defer span.End()

	svc, id, httpErr := getService(c)
	if httpErr != nil {
		return httpErr
	}

	edges, err := svc.ListParents(ctx, c.Param("table"), id)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to list parents")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"edges":       edges,
		"total_count": len(edges),
	})
}

// Tree walks the record's descendants breadth-first over the relational edges
func Tree(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "hierarchy_handler.Tree")
	defer span.End()

	svc, id, httpErr := getService(c)
	if httpErr != nil {
		return httpErr
	}

	tree, err := svc.Tree(ctx, c.Param("table"), id, depthParam(c))
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to build tree")
	}

	return c.JSON(http.StatusOK, tree)
}

// Subtree runs the deep traversal against the graph mirror
func Subtree(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "hierarchy_handler.Subtree")
	defer span.End()

	svc, id, httpErr := getService(c)
	if httpErr != nil {
		return httpErr
	}

	result, err := svc.Subtree(ctx, c.Param("table"), id, depthParam(c))
	if err != nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	return c.JSON(http.StatusOK, result)
}

// Ancestors runs the deep upward traversal against the graph mirror
func Ancestors(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "hierarchy_handler.Ancestors")
	defer span.End()

	svc, id, httpErr := getService(c)
	if httpErr != nil {
		return httpErr
	}

	result, err := svc.Ancestors(ctx, c.Param("table"), id, depthParam(c))
	if err != nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	return c.JSON(http.StatusOK, result)
}

// ControllingOwners walks the controlling-stake chain against the graph mirror
func ControllingOwners(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "hierarchy_handler.ControllingOwners")
	defer span.End()

	svc, id, httpErr := getService(c)
	if httpErr != nil {
		return httpErr
	}

	result, err := svc.ControllingOwners(ctx, c.Param("table"), id, depthParam(c))
	if err != nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	return c.JSON(http.StatusOK, result)
}

// ControllingParent returns the edge holding a controlling stake, if any
func ControllingParent(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "hierarchy_handler.ControllingParent")
	defer span.End()

	svc, id, httpErr := getService(c)
	if httpErr != nil {
		return httpErr
	}

	edge, err := svc.ControllingParent(ctx, c.Param("table"), id)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to find controlling parent")
	}
	if edge == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "no controlling parent")
	}

	return c.JSON(http.StatusOK, edge)
}

func getService(c echo.Context) (*hierarchysvc.Service, int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, 0, httperror.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	_, svc, err := ectoinject.GetContext[*hierarchysvc.Service](c.Request().Context())
	if err != nil {
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get hierarchy service")
	}
	return svc, id, nil
}

func depthParam(c echo.Context) int {
	depth, err := strconv.Atoi(c.QueryParam("depth"))
	if err != nil || depth <= 0 {
		return hierarchysvc.DefaultMaxDepth
	}
	return depth
}
