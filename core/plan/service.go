package plan

import (
	"context"
	"io"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/account"
)

var (
	// errors
	ErrApplicationNotFound = errors.New("application not found")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrPaymentNotFound     = errors.New("payment not found")

	ErrActiveApplicationExists = errors.New("student already has an active application")
	ErrStudentInactive         = errors.New("student is inactive")
	ErrNotPending              = errors.New("application is not pending")
	ErrDocumentsNotVerified    = errors.New("all documents must be verified before approval")
	ErrDocumentVerified        = errors.New("document is already verified")
	ErrDocumentNotUploaded     = errors.New("document has not been uploaded")
	ErrAlreadyPaid             = errors.New("payment has already been settled")

	// for tests
	nowFunc = time.Now
)

// Service runs the BNPL plan lifecycle: application submission, document
// verification, approval, rejection and payment collection. Every operation
// authorizes the Actor at the boundary; every transition is a status-guarded
// write so concurrent actors get a ConflictError instead of a lost update.
type Service struct {
	repo       Repository
	files      FileStorage
	gateway    Gateway
	students   StudentDirectory
	accountSvc *account.Service
	mailSvc    core.EmailService
	conf       *core.Config
}

func NewService(
	repo Repository,
	files FileStorage,
	gateway Gateway,
	students StudentDirectory,
	accountSvc *account.Service,
	mailSvc core.EmailService,
	conf *core.Config,
) *Service {
	return &Service{
		repo:       repo,
		files:      files,
		gateway:    gateway,
		students:   students,
		accountSvc: accountSvc,
		mailSvc:    mailSvc,
		conf:       conf,
	}
}

// Submit creates a pending application with its document checklist for one of
// the guardian's students. Attached files are stored durably before anything
// is committed; the checklist types not attached start out pending.
func (svc *Service) Submit(ctx context.Context, actor account.Actor, na NewApplication) (Application, error) {
	if !actor.IsParent() {
		return Application{}, core.ErrPermissionDenied
	}

	std, err := svc.students.GetStudent(ctx, na.StudentID)
	if err != nil {
		return Application{}, err
	}
	if std.GuardianID != actor.ID {
		return Application{}, core.ErrPermissionDenied
	}
	if !std.Active {
		return Application{}, core.NewPreconditionError(ErrStudentInactive)
	}
	if std.FeeAmount <= 0 {
		return Application{}, core.NewValidationError(nil,
			core.FieldError{Field: "total_fee", Error: "student fee amount must be positive"})
	}
	if max := svc.conf.Plan.MaxApplicationAmount; max > 0 && std.FeeAmount > max {
		return Application{}, core.NewValidationError(nil,
			core.FieldError{Field: "total_fee", Error: "fee amount exceeds the maximum financeable amount"})
	}

	exists, err := svc.repo.ActiveApplicationExists(ctx, std.ID)
	if err != nil {
		return Application{}, err
	}
	if exists {
		return Application{}, core.NewPreconditionError(ErrActiveApplicationExists)
	}

	// the application ID is assigned up front so attachments can be stored
	// under it before anything is committed
	appID := uuid.New().String()
	refs := make(map[string]string, len(na.Documents))
	for _, upload := range na.Documents {
		ref, err := svc.saveFile(ctx, appID, upload)
		if err != nil {
			return Application{}, err
		}
		refs[upload.Type] = ref
	}

	now := nowFunc().UTC()
	breakdown := ComputeBreakdown(std.FeeAmount, svc.conf.Plan.DownPaymentRatio, svc.conf.Plan.InstallmentCount)
	app := Application{
		ID:                appID,
		StudentID:         std.ID,
		GuardianID:        actor.ID,
		SchoolID:          std.SchoolID,
		TotalFee:          breakdown.TotalFee,
		DownPayment:       breakdown.DownPayment,
		InstallmentAmount: breakdown.InstallmentAmount,
		InstallmentCount:  breakdown.InstallmentCount,
		DownPaymentRatio:  breakdown.DownPaymentRatio,
		Status:            StatusPending,
		AppliedAt:         now,
		MonthlyIncome:     na.MonthlyIncome,
		EmploymentType:    na.EmploymentType,
		AdditionalInfo:    na.AdditionalInfo,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	docs := make([]Document, 0, len(SubmissionChecklist))
	for _, typ := range SubmissionChecklist {
		doc := Document{
			Type:      typ,
			Status:    DocStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if ref, ok := refs[typ]; ok {
			doc.Status = DocStatusUploaded
			doc.FileRef = ref
			doc.UploadedAt = now
		}
		docs = append(docs, doc)
	}
	return svc.repo.CreateApplication(ctx, app, docs)
}

// Approve transitions a pending application to approved and generates its
// payment schedule. Admin only; every checklist document must be verified.
func (svc *Service) Approve(ctx context.Context, actor account.Actor, id string) (Application, error) {
	if !actor.IsAdmin() {
		return Application{}, core.ErrPermissionDenied
	}
	app, err := svc.repo.GetApplicationByID(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if !app.IsPending() {
		return Application{}, core.NewPreconditionError(ErrNotPending)
	}

	docs, err := svc.repo.FilterDocuments(ctx, DocumentFilter{ApplicationID: app.ID}, nil)
	if err != nil {
		return Application{}, err
	}
	for _, doc := range docs {
		if !doc.IsVerified() {
			return Application{}, core.NewPreconditionError(ErrDocumentsNotVerified)
		}
	}

	now := nowFunc().UTC()
	app.Status = StatusApproved
	app.ApprovedAt = now
	app.UpdatedAt = now
	app, err = svc.repo.ApproveApplication(ctx, app, StatusPending, BuildSchedule(app, now))
	if err != nil {
		return Application{}, err
	}

	svc.notifyGuardian(ctx, app.GuardianID, "Your application has been approved", "application-approved",
		struct {
			TotalFee          int64
			DownPayment       int64
			InstallmentAmount int64
			InstallmentCount  int
		}{app.TotalFee, app.DownPayment, app.InstallmentAmount, app.InstallmentCount})
	return app, nil
}

// Reject transitions a pending application to rejected. Admin only; a
// non-blank reason is mandatory and stored verbatim.
func (svc *Service) Reject(ctx context.Context, actor account.Actor, id, reason string) (Application, error) {
	if !actor.IsAdmin() {
		return Application{}, core.ErrPermissionDenied
	}
	if core.CleanString(reason) == "" {
		return Application{}, core.NewValidationError(nil,
			core.FieldError{Field: "rejection_reason", Error: "rejection reason is required"})
	}

	app, err := svc.repo.GetApplicationByID(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if !app.IsPending() {
		return Application{}, core.NewPreconditionError(ErrNotPending)
	}

	app.Status = StatusRejected
	app.RejectionReason = reason
	app.UpdatedAt = nowFunc().UTC()
	app, err = svc.repo.UpdateApplication(ctx, app, StatusPending)
	if err != nil {
		return Application{}, err
	}

	svc.notifyGuardian(ctx, app.GuardianID, "Your application has been rejected", "application-rejected",
		struct{ Reason string }{app.RejectionReason})
	return app, nil
}

// UploadDocument attaches (or re-attaches) a file to a checklist document.
// Owning guardian or admin; legal from pending or rejected only, and the file
// is stored durably before the uploaded transition commits. Re-uploading a
// rejected document clears its rejection reason.
func (svc *Service) UploadDocument(ctx context.Context, actor account.Actor, docID, filename string, content io.Reader) (Document, error) {
	doc, err := svc.repo.GetDocumentByID(ctx, docID)
	if err != nil {
		return Document{}, err
	}
	app, err := svc.repo.GetApplicationByID(ctx, doc.ApplicationID)
	if err != nil {
		return Document{}, err
	}
	if !actor.IsAdmin() && !(actor.IsParent() && app.GuardianID == actor.ID) {
		return Document{}, core.ErrPermissionDenied
	}

	switch doc.Status {
	case DocStatusVerified:
		return Document{}, core.NewPreconditionError(ErrDocumentVerified)
	case DocStatusPending, DocStatusRejected:
	default:
		return Document{}, core.NewPreconditionError(
			errors.Errorf("document cannot be uploaded from status %q", doc.Status))
	}

	ref, err := svc.saveFile(ctx, app.ID, DocumentUpload{Type: doc.Type, Filename: filename, Content: content})
	if err != nil {
		return Document{}, err
	}

	now := nowFunc().UTC()
	doc.Status = DocStatusUploaded
	doc.FileRef = ref
	doc.UploadedAt = now
	doc.RejectionReason = ""
	doc.UpdatedAt = now
	return svc.repo.UpdateDocument(ctx, doc, DocStatusPending, DocStatusRejected)
}

// VerifyDocument marks an uploaded document verified. Admin or the school
// owning the application.
func (svc *Service) VerifyDocument(ctx context.Context, actor account.Actor, docID string) (Document, error) {
	doc, err := svc.authorizeDocumentReview(ctx, actor, docID)
	if err != nil {
		return Document{}, err
	}
	if doc.Status != DocStatusUploaded {
		return Document{}, core.NewPreconditionError(ErrDocumentNotUploaded)
	}

	now := nowFunc().UTC()
	doc.Status = DocStatusVerified
	doc.VerifiedAt = now
	doc.UpdatedAt = now
	return svc.repo.UpdateDocument(ctx, doc, DocStatusUploaded)
}

// RejectDocument marks an uploaded document rejected with a mandatory reason.
// Admin or the school owning the application.
func (svc *Service) RejectDocument(ctx context.Context, actor account.Actor, docID, reason string) (Document, error) {
	if core.CleanString(reason) == "" {
		return Document{}, core.NewValidationError(nil,
			core.FieldError{Field: "rejection_reason", Error: "rejection reason is required"})
	}
	doc, err := svc.authorizeDocumentReview(ctx, actor, docID)
	if err != nil {
		return Document{}, err
	}
	if doc.Status != DocStatusUploaded {
		return Document{}, core.NewPreconditionError(ErrDocumentNotUploaded)
	}

	doc.Status = DocStatusRejected
	doc.RejectionReason = reason
	doc.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateDocument(ctx, doc, DocStatusUploaded)
}

// Pay settles one scheduled due. Owning guardian only; the gateway is charged
// first and nothing is committed when it fails, so the whole call is
// retryable. A second call on a settled payment fails with a
// PreconditionError.
func (svc *Service) Pay(ctx context.Context, actor account.Actor, paymentID string, pi PayInput) (Payment, error) {
	pmt, err := svc.repo.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if !actor.IsParent() || pmt.GuardianID != actor.ID {
		return Payment{}, core.ErrPermissionDenied
	}

	now := nowFunc().UTC()
	if pmt.DeriveStatus(now) == PaymentStatusPaid {
		return Payment{}, core.NewPreconditionError(ErrAlreadyPaid)
	}

	chargeCtx, cancel := context.WithTimeout(ctx, svc.conf.Plan.GatewayTimeout)
	defer cancel()
	ref, err := svc.gateway.Charge(chargeCtx, Charge{
		PaymentID:     pmt.ID,
		ApplicationID: pmt.ApplicationID,
		Amount:        pmt.Amount,
		Method:        pi.Method,
	})
	if err != nil {
		return Payment{}, core.NewDependencyError("payment gateway", err)
	}

	pmt.PaidDate = &now
	pmt.PaymentMethod = pi.Method
	pmt.TransactionRef = ref
	pmt.Status = PaymentStatusPaid
	pmt.UpdatedAt = now
	pmt, err = svc.repo.MarkPaymentPaid(ctx, pmt)
	if err != nil {
		return Payment{}, err
	}

	svc.notifyGuardian(ctx, pmt.GuardianID, "Payment received", "payment-receipt",
		struct {
			Amount         int64
			Method         string
			TransactionRef string
		}{pmt.Amount, MethodLabel(pmt.PaymentMethod), pmt.TransactionRef})
	return pmt, nil
}

// GetApplication returns an application scoped to the actor.
func (svc *Service) GetApplication(ctx context.Context, actor account.Actor, id string) (Application, error) {
	app, err := svc.repo.GetApplicationByID(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if actor.IsParent() && app.GuardianID != actor.ID {
		return Application{}, ErrApplicationNotFound
	}
	if actor.IsSchool() && app.SchoolID != actor.SchoolID {
		return Application{}, ErrApplicationNotFound
	}
	return app, nil
}

func (svc *Service) FilterApplications(ctx context.Context, actor account.Actor, filter *ApplicationFilter, ordering []core.DBOrdering) ([]Application, error) {
	switch {
	case actor.IsParent():
		filter.GuardianID = actor.ID
	case actor.IsSchool():
		filter.SchoolID = actor.SchoolID
	case !actor.IsAdmin():
		return nil, core.ErrPermissionDenied
	}
	return svc.repo.FilterApplications(ctx, *filter, ordering)
}

func (svc *Service) FilterDocuments(ctx context.Context, actor account.Actor, filter *DocumentFilter, ordering []core.DBOrdering) ([]Document, error) {
	if filter.ApplicationID != "" {
		// scoping rides on application access
		if _, err := svc.GetApplication(ctx, actor, filter.ApplicationID); err != nil {
			return nil, err
		}
		return svc.repo.FilterDocuments(ctx, *filter, ordering)
	}
	switch {
	case actor.IsParent():
		filter.GuardianID = actor.ID
	case actor.IsSchool():
		filter.SchoolID = actor.SchoolID
	case !actor.IsAdmin():
		return nil, core.ErrPermissionDenied
	}
	return svc.repo.FilterDocuments(ctx, *filter, ordering)
}

// FilterPayments lists payments scoped to the actor. Statuses are derived on
// read; a status filter is applied to the derived value.
func (svc *Service) FilterPayments(ctx context.Context, actor account.Actor, filter *PaymentFilter, ordering []core.DBOrdering) ([]Payment, error) {
	switch {
	case actor.IsParent():
		filter.GuardianID = actor.ID
	case actor.IsSchool():
		filter.SchoolID = actor.SchoolID
	case !actor.IsAdmin():
		return nil, core.ErrPermissionDenied
	}

	wantStatus := filter.Status
	filter.Status = "" // derived, not a stored column filter
	pmts, err := svc.repo.FilterPayments(ctx, *filter, ordering)
	if err != nil {
		return nil, err
	}

	now := nowFunc().UTC()
	result := pmts[:0]
	for i := range pmts {
		pmts[i].Status = pmts[i].DeriveStatus(now)
		if wantStatus == "" || pmts[i].Status == wantStatus {
			result = append(result, pmts[i])
		}
	}
	return result, nil
}

func (svc *Service) GetPayment(ctx context.Context, actor account.Actor, id string) (Payment, error) {
	pmt, err := svc.repo.GetPaymentByID(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if actor.IsParent() && pmt.GuardianID != actor.ID {
		return Payment{}, ErrPaymentNotFound
	}
	if actor.IsSchool() {
		app, err := svc.repo.GetApplicationByID(ctx, pmt.ApplicationID)
		if err != nil || app.SchoolID != actor.SchoolID {
			return Payment{}, ErrPaymentNotFound
		}
	}
	pmt.Status = pmt.DeriveStatus(nowFunc().UTC())
	return pmt, nil
}

// authorizeDocumentReview loads a document and checks the actor may review it
// (verify or reject): admin, or the school owning the application.
func (svc *Service) authorizeDocumentReview(ctx context.Context, actor account.Actor, docID string) (Document, error) {
	doc, err := svc.repo.GetDocumentByID(ctx, docID)
	if err != nil {
		return Document{}, err
	}
	if actor.IsAdmin() {
		return doc, nil
	}
	if actor.IsSchool() {
		app, err := svc.repo.GetApplicationByID(ctx, doc.ApplicationID)
		if err != nil {
			return Document{}, err
		}
		if app.SchoolID == actor.SchoolID {
			return doc, nil
		}
	}
	return Document{}, core.ErrPermissionDenied
}

func (svc *Service) saveFile(ctx context.Context, applicationID string, upload DocumentUpload) (string, error) {
	saveCtx, cancel := context.WithTimeout(ctx, svc.conf.Plan.UploadTimeout)
	defer cancel()
	ref, err := svc.files.Save(saveCtx, applicationID, upload.Type, upload.Filename, upload.Content)
	if err != nil {
		return "", core.NewDependencyError("file storage", err)
	}
	return ref, nil
}

func (svc *Service) notifyGuardian(ctx context.Context, guardianID, subject, template string, data interface{}) {
	guardian, err := svc.accountSvc.GetByID(ctx, guardianID)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: guardian.Name, Address: guardian.Email}},
		Subject:      subject,
		TemplateName: template,
		TemplateData: data,
	})
}
