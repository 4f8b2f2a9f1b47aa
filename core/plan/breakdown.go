package plan

import (
	"math"
	"time"
)

// Breakdown is the financial split of a fee into a down payment plus fixed
// monthly installments. Amounts are whole rupees.
//
// Rounding policy: round-half-up to the nearest whole rupee, applied to the
// down payment first and then to the per-installment amount. The parts may
// therefore not sum exactly to TotalFee; the residual is bounded by
// InstallmentCount-1 rupees and callers must tolerate it.
type Breakdown struct {
	TotalFee          int64   `json:"total_fee"`
	DownPayment       int64   `json:"down_payment"`
	InstallmentAmount int64   `json:"installment_amount"`
	InstallmentCount  int     `json:"installment_count"`
	DownPaymentRatio  float64 `json:"down_payment_ratio"`
}

// ComputeBreakdown splits totalFee into a down payment of totalFee*ratio and
// count equal installments covering the remainder.
//
// Preconditions (validated by callers, not here): totalFee > 0,
// 0 < ratio < 1, count >= 1.
func ComputeBreakdown(totalFee int64, ratio float64, count int) Breakdown {
	down := roundHalfUp(float64(totalFee) * ratio)
	installment := roundHalfUp(float64(totalFee-down) / float64(count))
	return Breakdown{
		TotalFee:          totalFee,
		DownPayment:       down,
		InstallmentAmount: installment,
		InstallmentCount:  count,
		DownPaymentRatio:  ratio,
	}
}

func roundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}

// BuildSchedule generates the payment records owed for an approved
// application: the down payment due at approval time, then one installment
// per calendar month after it. Record IDs are assigned by the repository.
func BuildSchedule(app Application, approvedAt time.Time) []Payment {
	schedule := make([]Payment, 0, app.InstallmentCount+1)
	schedule = append(schedule, Payment{
		ApplicationID: app.ID,
		GuardianID:    app.GuardianID,
		Amount:        app.DownPayment,
		Kind:          KindDownPayment,
		DueDate:       approvedAt,
		Status:        PaymentStatusPending,
		CreatedAt:     approvedAt,
		UpdatedAt:     approvedAt,
	})
	for i := 1; i <= app.InstallmentCount; i++ {
		schedule = append(schedule, Payment{
			ApplicationID:     app.ID,
			GuardianID:        app.GuardianID,
			Amount:            app.InstallmentAmount,
			Kind:              KindInstallment,
			InstallmentNumber: i,
			DueDate:           approvedAt.AddDate(0, i, 0),
			Status:            PaymentStatusPending,
			CreatedAt:         approvedAt,
			UpdatedAt:         approvedAt,
		})
	}
	return schedule
}
