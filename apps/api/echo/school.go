package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/skoolpay/skoolpay/core/school"
)

type schoolApi struct {
	deps *ServerDeps
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *ServerDeps) {
	api := schoolApi{deps: deps}

	sg := g.Group("/schools", jwt)
	sg.POST("", api.create, adminMiddleware())
	sg.GET("", api.query)
	sg.DELETE("", api.destroyMultiple, adminMiddleware())
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update, adminMiddleware())
	sg.DELETE("/:id", api.destroy, adminMiddleware())
}

// Handlers

func (api *schoolApi) create(ctx echo.Context) error {
	var data school.NewSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchool")
	}
	if err := data.Validate(ctx.Request().Context(), api.deps.Validate, api.deps.SchoolSvc); err != nil {
		return err
	}

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	sch, err := api.deps.SchoolSvc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating school")
	}
	return ctx.JSON(http.StatusCreated, sch)
}

func (api *schoolApi) query(ctx echo.Context) error {
	filter := new(school.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.School{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	schools, err := api.deps.SchoolSvc.Filter(ctx.Request().Context(), actor, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	if schools == nil {
		schools = []school.School{}
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (api *schoolApi) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	sch, err := api.deps.SchoolSvc.GetByID(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	orig, err := api.deps.SchoolSvc.GetByID(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data school.UpdateSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSchool")
	}
	if err := data.Validate(ctx.Request().Context(), orig, api.deps.Validate, api.deps.SchoolSvc); err != nil {
		return err
	}

	sch, err := api.deps.SchoolSvc.Update(ctx.Request().Context(), actor, orig.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating school")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err := api.deps.SchoolSvc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting school")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err := api.deps.SchoolSvc.Delete(ctx.Request().Context(), actor, query.IDs...); err != nil {
		return errors.Wrap(err, "deleting schools")
	}
	return ctx.NoContent(http.StatusNoContent)
}
