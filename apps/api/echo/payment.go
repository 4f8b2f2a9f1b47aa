package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/skoolpay/skoolpay/core/account"
	"github.com/skoolpay/skoolpay/core/plan"
)

type paymentApi struct {
	deps *ServerDeps
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *ServerDeps) {
	api := paymentApi{deps: deps}

	pg := g.Group("/payments", jwt)
	pg.GET("", api.query)
	pg.GET("/:id", api.retrieve)
	pg.POST("/:id/pay", api.pay, roleMiddleware(account.RoleParent))
}

// Handlers

func (api *paymentApi) query(ctx echo.Context) error {
	filter := new(plan.PaymentFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []plan.Payment{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	pmts, err := api.deps.PlanSvc.FilterPayments(ctx.Request().Context(), actor, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if pmts == nil {
		pmts = []plan.Payment{}
	}
	return ctx.JSON(http.StatusOK, pmts)
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	pmt, err := api.deps.PlanSvc.GetPayment(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *paymentApi) pay(ctx echo.Context) error {
	var data plan.PayInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PayInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	pmt, err := api.deps.PlanSvc.Pay(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pmt)
}
