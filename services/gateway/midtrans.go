package gatewaysvc

import (
	"context"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/pkg/errors"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/plan"
)

// midtransGateway charges through the Midtrans Snap API. The payment record
// ID doubles as the order ID so retried charges for the same due collapse
// into one order on the gateway side.
type midtransGateway struct {
	client snap.Client
	logger core.Logger
}

var _ plan.Gateway = (*midtransGateway)(nil)

func NewMidtransGateway(conf *core.Config, logger core.Logger) *midtransGateway {
	env := midtrans.Sandbox
	if conf.Env == "PROD" {
		env = midtrans.Production
	}
	g := &midtransGateway{logger: logger}
	g.client.New(conf.MidtransServerKey, env)
	return g
}

func (g *midtransGateway) Charge(ctx context.Context, ch plan.Charge) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if ch.Amount <= 0 {
		return "", errors.New("invalid charge amount")
	}

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  ch.PaymentID,
			GrossAmt: ch.Amount,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:       ch.PaymentID,
			Price:    ch.Amount,
			Qty:      1,
			Name:     "School fee installment",
			Category: "BNPL",
		}},
		EnabledPayments: enabledPayments(ch.Method),
	}

	resp, err := g.client.CreateTransaction(req)
	if err != nil {
		return "", err
	}
	g.logger.Info("midtrans transaction created", map[string]interface{}{
		"order_id":     ch.PaymentID,
		"redirect_url": resp.RedirectURL,
	})
	return ch.PaymentID, nil
}

func enabledPayments(method string) []snap.SnapPaymentType {
	switch method {
	case plan.MethodCard:
		return []snap.SnapPaymentType{snap.PaymentTypeCreditCard}
	case plan.MethodBankTransfer:
		return []snap.SnapPaymentType{snap.PaymentTypeBankTransfer, snap.PaymentTypePermataVA, snap.PaymentTypeBCAVA}
	case plan.MethodEasyPaisa, plan.MethodJazzCash:
		return []snap.SnapPaymentType{snap.PaymentTypeGopay, snap.PaymentTypeShopeepay}
	default:
		return nil
	}
}
