package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/account"
	"github.com/skoolpay/skoolpay/core/student"
)

type studentApi struct {
	deps *ServerDeps
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *ServerDeps) {
	api := studentApi{deps: deps}

	sg := g.Group("/students", jwt)
	sg.POST("", api.create, roleMiddleware(account.RoleAdmin, account.RoleSchool))
	sg.GET("", api.query)
	sg.DELETE("", api.destroyMultiple, roleMiddleware(account.RoleAdmin, account.RoleSchool))
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update, roleMiddleware(account.RoleAdmin, account.RoleSchool))
	sg.POST("/:id/guardian", api.assignGuardian, roleMiddleware(account.RoleAdmin, account.RoleSchool))
	sg.DELETE("/:id", api.destroy, roleMiddleware(account.RoleAdmin, account.RoleSchool))
}

// Handlers

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if actor.IsSchool() {
		// roll-number uniqueness is validated within the actor's own school
		data.SchoolID = actor.SchoolID
	}
	if err := data.Validate(ctx.Request().Context(), api.deps.Validate, api.deps.StudentSvc); err != nil {
		return err
	}

	std, err := api.deps.StudentSvc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *studentApi) query(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	students, err := api.deps.StudentSvc.Filter(ctx.Request().Context(), actor, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	std, err := api.deps.StudentSvc.GetByID(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	orig, err := api.deps.StudentSvc.GetByID(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(ctx.Request().Context(), orig, api.deps.Validate, api.deps.StudentSvc); err != nil {
		return err
	}

	std, err := api.deps.StudentSvc.Update(ctx.Request().Context(), actor, orig.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) assignGuardian(ctx echo.Context) error {
	var data AssignGuardianRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignGuardianRequest")
	}
	if err := data.Validate(api.deps); err != nil {
		return err
	}

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	std, err := api.deps.StudentSvc.AssignGuardian(
		ctx.Request().Context(), actor, ctx.Param("id"), data.Name, data.Email, data.Phone, data.CNIC)
	if err != nil {
		return errors.Wrap(err, "assigning guardian")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err := api.deps.StudentSvc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) destroyMultiple(ctx echo.Context) error {
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
	if err := api.deps.StudentSvc.Delete(ctx.Request().Context(), actor, query.IDs...); err != nil {
		return errors.Wrap(err, "deleting students")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type AssignGuardianRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,min=7"`
	CNIC  string `json:"cnic" validate:"omitempty,min=13"`
}

func (ag *AssignGuardianRequest) Validate(deps *ServerDeps) error {
	ag.Name = core.CleanString(ag.Name)
	ag.Email = core.CleanString(ag.Email, true /* lower */)
	ag.Phone = core.CleanString(ag.Phone)
	ag.CNIC = core.CleanString(ag.CNIC)
	return deps.Validate.Struct(ag)
}
