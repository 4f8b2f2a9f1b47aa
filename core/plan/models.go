package plan

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/skoolpay/skoolpay/core"
)

// Application statuses. Transitions are monotonic: pending may move to
// approved or rejected; both are terminal.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Document statuses: pending -> uploaded -> verified | rejected.
// A rejected document may be re-uploaded (back to uploaded); a verified one
// is final.
const (
	DocStatusPending  = "pending"
	DocStatusUploaded = "uploaded"
	DocStatusVerified = "verified"
	DocStatusRejected = "rejected"
)

// Document types. The submission checklist is the 6-type subset every new
// application gets; the remaining two are accepted on upload but not required.
const (
	DocTypeCNICFront             = "cnic_front"
	DocTypeCNICBack              = "cnic_back"
	DocTypeBankStatement         = "bank_statement"
	DocTypeSalarySlip            = "salary_slip"
	DocTypeUtilityBills          = "utility_bills"
	DocTypeFeeVoucher            = "fee_voucher"
	DocTypeEducationRegistration = "education_registration"
	DocTypeResidenceProof        = "residence_proof"
)

var (
	SubmissionChecklist = []string{
		DocTypeCNICFront, DocTypeCNICBack, DocTypeBankStatement,
		DocTypeSalarySlip, DocTypeUtilityBills, DocTypeFeeVoucher,
	}
	AllDocumentTypes = append(SubmissionChecklist[:6:6],
		DocTypeEducationRegistration, DocTypeResidenceProof)
)

// Payment kinds and derived statuses. A payment is paid iff PaidDate is set;
// otherwise it is overdue when past due, pending until then. The stored
// status column is a cache refreshed on transitions; reads go through
// DeriveStatus.
const (
	KindDownPayment = "down_payment"
	KindInstallment = "installment"

	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusOverdue = "overdue"
)

// Payment methods.
const (
	MethodCard         = "card"
	MethodBankTransfer = "bank_transfer"
	MethodEasyPaisa    = "easypaisa"
	MethodJazzCash     = "jazzcash"
)

var AllMethods = []string{MethodCard, MethodBankTransfer, MethodEasyPaisa, MethodJazzCash}

var methodLabels = map[string]string{
	MethodCard:         "Credit/Debit Card",
	MethodBankTransfer: "Bank Transfer",
	MethodEasyPaisa:    "EasyPaisa",
	MethodJazzCash:     "JazzCash",
}

// MethodLabel returns the display label for a payment method code.
func MethodLabel(method string) string {
	if label, ok := methodLabels[method]; ok {
		return label
	}
	return method
}

// Application is a BNPL request tying a student's fee to a financed schedule.
// The down-payment ratio in effect is snapshotted at submission so later
// policy changes never rewrite pending applications.
type Application struct {
	ID                string    `json:"id"`
	StudentID         string    `json:"student_id"`
	GuardianID        string    `json:"guardian_id"`
	SchoolID          string    `json:"school_id"`
	TotalFee          int64     `json:"total_fee"`
	DownPayment       int64     `json:"down_payment"`
	InstallmentAmount int64     `json:"installment_amount"`
	InstallmentCount  int       `json:"installment_count"`
	DownPaymentRatio  float64   `json:"down_payment_ratio"`
	Status            string    `json:"status"`
	AppliedAt         time.Time `json:"applied_at"`            // UTC
	ApprovedAt        time.Time `json:"approved_at,omitempty"` // set iff approved
	RejectionReason   string    `json:"rejection_reason,omitempty"`
	MonthlyIncome     int64     `json:"monthly_income,omitempty"`
	EmploymentType    string    `json:"employment_type,omitempty"`
	AdditionalInfo    string    `json:"additional_info,omitempty"`
	CreatedAt         time.Time `json:"created_at"` // UTC
	UpdatedAt         time.Time `json:"updated_at"` // UTC
}

func (a *Application) IsPending() bool  { return a.Status == StatusPending }
func (a *Application) IsApproved() bool { return a.Status == StatusApproved }
func (a *Application) IsRejected() bool { return a.Status == StatusRejected }

// Active reports whether the application still blocks a new one for the same
// student: a rejected application does not.
func (a *Application) Active() bool { return !a.IsRejected() }

// Document is one item of an application's verification checklist.
type Document struct {
	ID              string    `json:"id"`
	ApplicationID   string    `json:"application_id"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	FileRef         string    `json:"file_ref,omitempty"`
	UploadedAt      time.Time `json:"uploaded_at,omitempty"`
	VerifiedAt      time.Time `json:"verified_at,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

func (d *Document) IsVerified() bool { return d.Status == DocStatusVerified }

// Payment is one scheduled due: the down payment or one of N installments.
type Payment struct {
	ID                string     `json:"id"`
	ApplicationID     string     `json:"application_id"`
	GuardianID        string     `json:"guardian_id"`
	Amount            int64      `json:"amount"`
	Kind              string     `json:"kind"`
	InstallmentNumber int        `json:"installment_number,omitempty"` // 1..N, installments only
	DueDate           time.Time  `json:"due_date"`
	Status            string     `json:"status"`
	PaidDate          *time.Time `json:"paid_date,omitempty"`
	PaymentMethod     string     `json:"payment_method,omitempty"`
	TransactionRef    string     `json:"transaction_ref,omitempty"`
	CreatedAt         time.Time  `json:"created_at"` // UTC
	UpdatedAt         time.Time  `json:"updated_at"` // UTC
}

// DeriveStatus computes the payment's status from its own fields and the
// clock: paid iff PaidDate is set, else overdue iff past due, else pending.
func (p *Payment) DeriveStatus(now time.Time) string {
	if p.PaidDate != nil {
		return PaymentStatusPaid
	}
	if p.DueDate.Before(now) {
		return PaymentStatusOverdue
	}
	return PaymentStatusPending
}

func (p *Payment) IsPaid() bool { return p.PaidDate != nil }

type (
	// Repository is the persistence collaborator. Status-guarded updates are
	// conditional writes: when the guard no longer matches (the entity changed
	// since it was read) implementations return a *core.ConflictError and
	// commit nothing.
	Repository interface {
		// CreateApplication persists the application and its document
		// checklist atomically, assigning IDs where empty.
		CreateApplication(ctx context.Context, app Application, docs []Document) (Application, error)
		GetApplicationByID(ctx context.Context, id string) (Application, error)
		// FilterApplications applies AND operation on available ApplicationFilter fields.
		FilterApplications(ctx context.Context, filter ApplicationFilter, ordering []core.DBOrdering) ([]Application, error)
		// ActiveApplicationExists reports whether the student has a pending or
		// approved application.
		ActiveApplicationExists(ctx context.Context, studentID string) (bool, error)
		// UpdateApplication writes status, ApprovedAt, RejectionReason and
		// UpdatedAt, guarded on fromStatus.
		UpdateApplication(ctx context.Context, app Application, fromStatus string) (Application, error)
		// ApproveApplication transitions the application out of fromStatus and
		// creates its payment schedule in the same transaction.
		ApproveApplication(ctx context.Context, app Application, fromStatus string, schedule []Payment) (Application, error)

		GetDocumentByID(ctx context.Context, id string) (Document, error)
		FilterDocuments(ctx context.Context, filter DocumentFilter, ordering []core.DBOrdering) ([]Document, error)
		// UpdateDocument writes status, FileRef, UploadedAt, VerifiedAt,
		// RejectionReason and UpdatedAt, guarded on fromStatuses.
		UpdateDocument(ctx context.Context, doc Document, fromStatuses ...string) (Document, error)

		GetPaymentByID(ctx context.Context, id string) (Payment, error)
		FilterPayments(ctx context.Context, filter PaymentFilter, ordering []core.DBOrdering) ([]Payment, error)
		// MarkPaymentPaid writes PaidDate, PaymentMethod, TransactionRef and
		// the status cache, guarded on the payment being unpaid.
		MarkPaymentPaid(ctx context.Context, pmt Payment) (Payment, error)
	}

	// FileStorage stores document blobs durably. Save returns a stable
	// reference (path or URL) under a location scoped by application and
	// document type; the uploaded transition only commits after Save returns.
	FileStorage interface {
		Save(ctx context.Context, applicationID, docType, filename string, content io.Reader) (string, error)
	}

	// Gateway moves the money. Charge returns the gateway's transaction
	// reference; any failure leaves domain state untouched.
	Gateway interface {
		Charge(ctx context.Context, ch Charge) (string, error)
	}

	Charge struct {
		PaymentID     string
		ApplicationID string
		Amount        int64
		Method        string
	}

	// StudentDirectory is what the engine needs to know about a student at
	// submission time.
	StudentDirectory interface {
		GetStudent(ctx context.Context, id string) (StudentInfo, error)
	}

	StudentInfo struct {
		ID         string
		SchoolID   string
		GuardianID string
		FeeAmount  int64
		Name       string
		Active     bool
	}

	ApplicationFilter struct {
		Status     string `query:"status"`
		StudentID  string `query:"student_id"`
		GuardianID string `query:"guardian_id"`
		SchoolID   string `query:"school_id"`
	}

	DocumentFilter struct {
		ApplicationID string `query:"application_id"`
		Status        string `query:"status"`
		Type          string `query:"type"`
		GuardianID    string `query:"-"`
		SchoolID      string `query:"-"`
	}

	PaymentFilter struct {
		ApplicationID string `query:"application_id"`
		Kind          string `query:"kind"`
		Status        string `query:"status"` // derived; applied after DeriveStatus
		GuardianID    string `query:"-"`
		SchoolID      string `query:"-"`
	}
)

func (f *ApplicationFilter) Clean() {
	f.Status = core.CleanString(f.Status, true /* lower */)
}

func (f *DocumentFilter) Clean() {
	f.Status = core.CleanString(f.Status, true /* lower */)
	f.Type = core.CleanString(f.Type, true /* lower */)
}

func (f *PaymentFilter) Clean() {
	f.Kind = core.CleanString(f.Kind, true /* lower */)
	f.Status = core.CleanString(f.Status, true /* lower */)
}

// DocumentUpload is one file attached at submission time.
type DocumentUpload struct {
	Type     string    `json:"type" validate:"required,doc_type"`
	Filename string    `json:"-" validate:"required"`
	Content  io.Reader `json:"-" validate:"required"`
}

// NewApplication contains information needed to submit a BNPL application.
// The fee amount comes from the student record, not from the caller.
type NewApplication struct {
	StudentID      string           `json:"student_id" validate:"required"`
	MonthlyIncome  int64            `json:"monthly_income" validate:"omitempty,gte=0"`
	EmploymentType string           `json:"employment_type"`
	AdditionalInfo string           `json:"additional_info"`
	Documents      []DocumentUpload `json:"-" validate:"dive"`
}

func (na *NewApplication) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	na.StudentID = core.CleanString(na.StudentID)
	na.EmploymentType = core.CleanString(na.EmploymentType)
	na.AdditionalInfo = core.CleanString(na.AdditionalInfo)
	for i := range na.Documents {
		na.Documents[i].Type = core.CleanString(na.Documents[i].Type, true /* lower */)
	}

	if err := validate.Struct(na); err != nil {
		return err
	}

	if min := svc.conf.Plan.MinDocuments; len(na.Documents) < min {
		return core.NewValidationError(nil, core.FieldError{
			Field: "documents",
			Error: "at least " + strconv.Itoa(min) + " documents are required",
		})
	}
	seen := make(map[string]bool, len(na.Documents))
	for _, doc := range na.Documents {
		if seen[doc.Type] {
			return core.NewValidationError(nil, core.FieldError{
				Field: "documents",
				Error: "duplicate document type: " + doc.Type,
			})
		}
		seen[doc.Type] = true
	}
	return nil
}

// PayInput contains information needed to settle one payment record.
type PayInput struct {
	Method string `json:"method" validate:"required,payment_method"`
}

func (pi *PayInput) Validate(validate *validator.Validate) error {
	pi.Method = core.CleanString(pi.Method, true /* lower */)
	return validate.Struct(pi)
}
