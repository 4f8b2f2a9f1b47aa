package echoapi

import (
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/account"
	"github.com/skoolpay/skoolpay/core/plan"
)

type applicationApi struct {
	deps *ServerDeps
}

func registerApplicationAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *ServerDeps) {
	api := applicationApi{deps: deps}

	ag := g.Group("/applications", jwt)
	ag.POST("", api.submit, roleMiddleware(account.RoleParent))
	ag.GET("", api.query)
	ag.GET("/:id", api.retrieve)
	ag.GET("/:id/documents", api.queryAppDocuments)
	ag.POST("/:id/approve", api.approve, adminMiddleware())
	ag.POST("/:id/reject", api.reject, adminMiddleware())

	dg := g.Group("/documents", jwt)
	dg.GET("", api.queryDocuments)
	dg.POST("/:id/upload", api.uploadDocument)
	dg.POST("/:id/verify", api.verifyDocument, roleMiddleware(account.RoleAdmin, account.RoleSchool))
	dg.POST("/:id/reject", api.rejectDocument, roleMiddleware(account.RoleAdmin, account.RoleSchool))
}

// Handlers

// submit accepts a multipart form: text fields for the application data plus
// one file part per attached document, named after its document type.
func (api *applicationApi) submit(ctx echo.Context) error {
	data := plan.NewApplication{
		StudentID:      ctx.FormValue("student_id"),
		EmploymentType: ctx.FormValue("employment_type"),
		AdditionalInfo: ctx.FormValue("additional_info"),
	}
	if v := ctx.FormValue("monthly_income"); v != "" {
		income, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return core.NewValidationError(nil,
				core.FieldError{Field: "monthly_income", Error: "must be a whole number"})
		}
		data.MonthlyIncome = income
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		return errors.Wrap(err, "reading multipart form")
	}
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for _, typ := range plan.AllDocumentTypes {
		headers := form.File[typ]
		if len(headers) == 0 {
			continue
		}
		f, err := headers[0].Open()
		if err != nil {
			return errors.Wrapf(err, "opening %s upload", typ)
		}
		opened = append(opened, f)
		data.Documents = append(data.Documents, plan.DocumentUpload{
			Type:     typ,
			Filename: headers[0].Filename,
			Content:  f,
		})
	}

	if err := data.Validate(ctx.Request().Context(), api.deps.Validate, api.deps.PlanSvc); err != nil {
		return err
	}

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	app, err := api.deps.PlanSvc.Submit(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "submitting application")
	}
	return ctx.JSON(http.StatusCreated, app)
}

func (api *applicationApi) query(ctx echo.Context) error {
	filter := new(plan.ApplicationFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []plan.Application{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	apps, err := api.deps.PlanSvc.FilterApplications(ctx.Request().Context(), actor, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying applications")
	}
	if apps == nil {
		apps = []plan.Application{}
	}
	return ctx.JSON(http.StatusOK, apps)
}

func (api *applicationApi) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	app, err := api.deps.PlanSvc.GetApplication(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) approve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	app, err := api.deps.PlanSvc.Approve(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) reject(ctx echo.Context) error {
	var data RejectRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RejectRequest")
	}

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	app, err := api.deps.PlanSvc.Reject(ctx.Request().Context(), actor, ctx.Param("id"), data.Reason)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) queryAppDocuments(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	docs, err := api.deps.PlanSvc.FilterDocuments(ctx.Request().Context(), actor,
		&plan.DocumentFilter{ApplicationID: ctx.Param("id")}, nil)
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []plan.Document{}
	}
	return ctx.JSON(http.StatusOK, docs)
}

func (api *applicationApi) queryDocuments(ctx echo.Context) error {
	filter := new(plan.DocumentFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []plan.Document{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	docs, err := api.deps.PlanSvc.FilterDocuments(ctx.Request().Context(), actor, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying documents")
	}
	if docs == nil {
		docs = []plan.Document{}
	}
	return ctx.JSON(http.StatusOK, docs)
}

func (api *applicationApi) uploadDocument(ctx echo.Context) error {
	header, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(nil,
			core.FieldError{Field: "file", Error: "a file is required"})
	}
	f, err := header.Open()
	if err != nil {
		return errors.Wrap(err, "opening upload")
	}
	defer func() { _ = f.Close() }()

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	doc, err := api.deps.PlanSvc.UploadDocument(ctx.Request().Context(), actor, ctx.Param("id"), header.Filename, f)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *applicationApi) verifyDocument(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	doc, err := api.deps.PlanSvc.VerifyDocument(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *applicationApi) rejectDocument(ctx echo.Context) error {
	var data RejectRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RejectRequest")
	}

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	doc, err := api.deps.PlanSvc.RejectDocument(ctx.Request().Context(), actor, ctx.Param("id"), data.Reason)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, doc)
}

type RejectRequest struct {
	Reason string `json:"reason"`
}
