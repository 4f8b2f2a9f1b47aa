package plan_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/account"
	"github.com/skoolpay/skoolpay/core/plan"
	"github.com/skoolpay/skoolpay/core/school"
	"github.com/skoolpay/skoolpay/core/student"
	emailsvc "github.com/skoolpay/skoolpay/services/email"
	filestore "github.com/skoolpay/skoolpay/services/filestore"
	gatewaysvc "github.com/skoolpay/skoolpay/services/gateway"
	inmemdb "github.com/skoolpay/skoolpay/storage/database/inmem"
)

var ctx = context.Background()

type testEnv struct {
	svc      *plan.Service
	validate *validator.Validate
	conf     *core.Config

	db         *inmemdb.DB
	planRepo   plan.Repository
	files      *filestore.MemoryStore
	gateway    *gatewaysvc.MockGateway
	accountSvc *account.Service
	mailSvc    core.EmailService
	students   plan.StudentDirectory

	admin    account.Actor
	guardian account.Actor
	schooler account.Actor
	otherGdn account.Actor
	student  student.Student
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conf := &core.Config{
		AppName: "SkoolPay",
		Plan: core.PlanConfig{
			DownPaymentRatio:     0.25,
			InstallmentCount:     6,
			MaxInstallments:      12,
			MinDocuments:         4,
			MaxApplicationAmount: 1000000,
			UploadTimeout:        time.Second,
			GatewayTimeout:       time.Second,
		},
	}

	validate := validator.New()
	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	core.InitValidators(validate, translator)
	plan.InitValidators(validate, translator)

	db := inmemdb.NewDB()
	accountRepo := inmemdb.NewAccountRepository(db)
	schoolRepo := inmemdb.NewSchoolRepository(db)
	studentRepo := inmemdb.NewStudentRepository(db)
	planRepo := inmemdb.NewPlanRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	accountSvc := account.NewService(accountRepo, mailSvc, conf)
	files := filestore.NewMemoryStore()
	gateway := gatewaysvc.NewMockGateway(0)

	studentsDir := student.NewDirectory(studentRepo)
	svc := plan.NewService(planRepo, files, gateway, studentsDir, accountSvc, mailSvc, conf)

	// fixtures
	now := time.Now().UTC()
	sch, err := schoolRepo.CreateSchool(ctx, school.School{
		Name: "City Grammar", Email: "info@citygrammar.test", Status: school.StatusActive,
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("creating school: %v", err)
	}

	newUser := func(name, email, role, schoolID string) account.User {
		usr := account.User{Name: name, Email: email, Role: role, SchoolID: schoolID, CreatedAt: now, UpdatedAt: now}
		usr.SetActive(true)
		usr, err := accountRepo.CreateUser(ctx, usr)
		if err != nil {
			t.Fatalf("creating %s: %v", role, err)
		}
		return usr
	}
	admin := newUser("Admin", "admin@skoolpay.test", account.RoleAdmin, "")
	schooler := newUser("Registrar", "registrar@citygrammar.test", account.RoleSchool, sch.ID)
	gdn := newUser("Guardian", "guardian@home.test", account.RoleParent, "")
	otherGdn := newUser("Other Guardian", "other@home.test", account.RoleParent, "")

	std, err := studentRepo.CreateStudent(ctx, student.Student{
		SchoolID: sch.ID, GuardianID: gdn.ID, Name: "Ali", Class: "8", RollNumber: "A12",
		FeeAmount: 100000, Status: student.StatusActive, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("creating student: %v", err)
	}

	return &testEnv{
		svc:        svc,
		validate:   validate,
		conf:       conf,
		db:         db,
		planRepo:   planRepo,
		files:      files,
		gateway:    gateway,
		accountSvc: accountSvc,
		mailSvc:    mailSvc,
		students:   studentsDir,
		admin:      admin.Actor(),
		guardian:   gdn.Actor(),
		schooler:   schooler.Actor(),
		otherGdn:   otherGdn.Actor(),
		student:    std,
	}
}

func uploads(types ...string) []plan.DocumentUpload {
	ups := make([]plan.DocumentUpload, 0, len(types))
	for _, typ := range types {
		ups = append(ups, plan.DocumentUpload{
			Type:     typ,
			Filename: typ + ".pdf",
			Content:  strings.NewReader("%PDF " + typ),
		})
	}
	return ups
}

func submit(t *testing.T, env *testEnv, docTypes ...string) plan.Application {
	t.Helper()
	na := plan.NewApplication{StudentID: env.student.ID, Documents: uploads(docTypes...)}
	if err := na.Validate(ctx, env.validate, env.svc); err != nil {
		t.Fatalf("validating submission: %v", err)
	}
	app, err := env.svc.Submit(ctx, env.guardian, na)
	if err != nil {
		t.Fatalf("submitting application: %v", err)
	}
	return app
}

func verifyAll(t *testing.T, env *testEnv, appID string) {
	t.Helper()
	docs, err := env.svc.FilterDocuments(ctx, env.admin, &plan.DocumentFilter{ApplicationID: appID}, nil)
	if err != nil {
		t.Fatalf("listing documents: %v", err)
	}
	for _, doc := range docs {
		if doc.Status == plan.DocStatusPending {
			if _, err = env.svc.UploadDocument(ctx, env.guardian, doc.ID, doc.Type+".pdf", strings.NewReader("%PDF")); err != nil {
				t.Fatalf("uploading %s: %v", doc.Type, err)
			}
		}
		if _, err = env.svc.VerifyDocument(ctx, env.admin, doc.ID); err != nil {
			t.Fatalf("verifying %s: %v", doc.Type, err)
		}
	}
}

func TestSubmit(t *testing.T) {
	env := newTestEnv(t)

	app := submit(t, env, plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement, plan.DocTypeSalarySlip)

	if app.Status != plan.StatusPending {
		t.Errorf("Status = %s, want %s", app.Status, plan.StatusPending)
	}
	if app.TotalFee != 100000 || app.DownPayment != 25000 || app.InstallmentAmount != 12500 || app.InstallmentCount != 6 {
		t.Errorf("breakdown = %d/%d/%d/%d, want 100000/25000/12500/6",
			app.TotalFee, app.DownPayment, app.InstallmentAmount, app.InstallmentCount)
	}
	if app.DownPaymentRatio != 0.25 {
		t.Errorf("DownPaymentRatio = %v, want 0.25", app.DownPaymentRatio)
	}
	if app.SchoolID != env.student.SchoolID || app.GuardianID != env.guardian.ID {
		t.Errorf("owners = (%s, %s), want (%s, %s)", app.SchoolID, app.GuardianID, env.student.SchoolID, env.guardian.ID)
	}

	// the full 6-type checklist is created; attached ones are uploaded
	docs, err := env.svc.FilterDocuments(ctx, env.guardian, &plan.DocumentFilter{ApplicationID: app.ID}, nil)
	if err != nil {
		t.Fatalf("listing documents: %v", err)
	}
	if len(docs) != 6 {
		t.Fatalf("len(docs) = %d, want 6", len(docs))
	}
	var uploaded, pending int
	for _, doc := range docs {
		switch doc.Status {
		case plan.DocStatusUploaded:
			uploaded++
			if doc.FileRef == "" || doc.UploadedAt.IsZero() {
				t.Errorf("uploaded doc %s has no file ref or timestamp", doc.Type)
			}
		case plan.DocStatusPending:
			pending++
		}
	}
	if uploaded != 4 || pending != 2 {
		t.Errorf("uploaded/pending = %d/%d, want 4/2", uploaded, pending)
	}
	if env.files.Len() != 4 {
		t.Errorf("stored files = %d, want 4", env.files.Len())
	}
}

func TestSubmitTooFewDocuments(t *testing.T) {
	env := newTestEnv(t)

	na := plan.NewApplication{
		StudentID: env.student.ID,
		Documents: uploads(plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement),
	}
	err := na.Validate(ctx, env.validate, env.svc)
	if _, ok := err.(*core.ValidationError); !ok {
		t.Fatalf("Validate() error = %v, want *core.ValidationError", err)
	}
}

func TestSubmitAuthz(t *testing.T) {
	env := newTestEnv(t)
	na := plan.NewApplication{
		StudentID: env.student.ID,
		Documents: uploads(plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement, plan.DocTypeSalarySlip),
	}

	if _, err := env.svc.Submit(ctx, env.otherGdn, na); err != core.ErrPermissionDenied {
		t.Errorf("Submit() by non-owning guardian error = %v, want %v", err, core.ErrPermissionDenied)
	}
	if _, err := env.svc.Submit(ctx, env.admin, na); err != core.ErrPermissionDenied {
		t.Errorf("Submit() by admin error = %v, want %v", err, core.ErrPermissionDenied)
	}
}

func TestSubmitOneActiveApplicationPerStudent(t *testing.T) {
	env := newTestEnv(t)
	submit(t, env, plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement, plan.DocTypeSalarySlip)

	na := plan.NewApplication{
		StudentID: env.student.ID,
		Documents: uploads(plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement, plan.DocTypeSalarySlip),
	}
	_, err := env.svc.Submit(ctx, env.guardian, na)
	if _, ok := err.(*core.PreconditionError); !ok {
		t.Fatalf("second Submit() error = %v, want *core.PreconditionError", err)
	}
}

func TestSubmitFileStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	env.files.Fail = context.DeadlineExceeded

	na := plan.NewApplication{
		StudentID: env.student.ID,
		Documents: uploads(plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement, plan.DocTypeSalarySlip),
	}
	_, err := env.svc.Submit(ctx, env.guardian, na)
	if _, ok := err.(*core.DependencyError); !ok {
		t.Fatalf("Submit() with failing storage error = %v, want *core.DependencyError", err)
	}

	// nothing committed
	apps, err := env.svc.FilterApplications(ctx, env.admin, &plan.ApplicationFilter{}, nil)
	if err != nil {
		t.Fatalf("listing applications: %v", err)
	}
	if len(apps) != 0 {
		t.Errorf("len(apps) = %d, want 0", len(apps))
	}
}

// scenario: all six documents verified -> approval succeeds and generates the
// schedule: 1 down payment + 6 installments summing to the fee.
func TestApprove(t *testing.T) {
	env := newTestEnv(t)
	app := submit(t, env,
		plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement,
		plan.DocTypeSalarySlip, plan.DocTypeUtilityBills, plan.DocTypeFeeVoucher)
	verifyAll(t, env, app.ID)

	approved, err := env.svc.Approve(ctx, env.admin, app.ID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if approved.Status != plan.StatusApproved {
		t.Errorf("Status = %s, want %s", approved.Status, plan.StatusApproved)
	}
	if approved.ApprovedAt.IsZero() {
		t.Error("ApprovedAt not set")
	}

	pmts, err := env.svc.FilterPayments(ctx, env.guardian, &plan.PaymentFilter{ApplicationID: app.ID}, nil)
	if err != nil {
		t.Fatalf("listing payments: %v", err)
	}
	if len(pmts) != 7 {
		t.Fatalf("len(payments) = %d, want 7", len(pmts))
	}
	var sum int64
	var downs, installments int
	for _, pmt := range pmts {
		sum += pmt.Amount
		switch pmt.Kind {
		case plan.KindDownPayment:
			downs++
			if !pmt.DueDate.Equal(approved.ApprovedAt) {
				t.Errorf("down payment due %s, want %s", pmt.DueDate, approved.ApprovedAt)
			}
		case plan.KindInstallment:
			installments++
			want := approved.ApprovedAt.AddDate(0, pmt.InstallmentNumber, 0)
			if !pmt.DueDate.Equal(want) {
				t.Errorf("installment %d due %s, want %s", pmt.InstallmentNumber, pmt.DueDate, want)
			}
		}
	}
	if downs != 1 || installments != 6 {
		t.Errorf("downs/installments = %d/%d, want 1/6", downs, installments)
	}
	if sum != 100000 {
		t.Errorf("schedule sums to %d, want 100000", sum)
	}
}

// scenario: approval is gated on every document being verified.
func TestApproveUnverifiedDocuments(t *testing.T) {
	env := newTestEnv(t)
	app := submit(t, env,
		plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement,
		plan.DocTypeSalarySlip, plan.DocTypeUtilityBills, plan.DocTypeFeeVoucher)

	// verify only 5 of 6
	docs, _ := env.svc.FilterDocuments(ctx, env.admin, &plan.DocumentFilter{ApplicationID: app.ID}, nil)
	for _, doc := range docs[:5] {
		if _, err := env.svc.VerifyDocument(ctx, env.admin, doc.ID); err != nil {
			t.Fatalf("verifying %s: %v", doc.Type, err)
		}
	}

	_, err := env.svc.Approve(ctx, env.admin, app.ID)
	if _, ok := err.(*core.PreconditionError); !ok {
		t.Fatalf("Approve() error = %v, want *core.PreconditionError", err)
	}

	got, _ := env.svc.GetApplication(ctx, env.admin, app.ID)
	if got.Status != plan.StatusPending {
		t.Errorf("Status = %s, want %s", got.Status, plan.StatusPending)
	}
}

func TestApproveAuthz(t *testing.T) {
	env := newTestEnv(t)
	app := submit(t, env, plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement, plan.DocTypeSalarySlip)

	if _, err := env.svc.Approve(ctx, env.guardian, app.ID); err != core.ErrPermissionDenied {
		t.Errorf("Approve() by guardian error = %v, want %v", err, core.ErrPermissionDenied)
	}
	if _, err := env.svc.Approve(ctx, env.schooler, app.ID); err != core.ErrPermissionDenied {
		t.Errorf("Approve() by school error = %v, want %v", err, core.ErrPermissionDenied)
	}
}

// scenario: blank reason is rejected; non-blank reason is stored verbatim and
// terminal states stay terminal.
func TestReject(t *testing.T) {
	env := newTestEnv(t)
	app := submit(t, env, plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement, plan.DocTypeSalarySlip)

	_, err := env.svc.Reject(ctx, env.admin, app.ID, "   ")
	if _, ok := err.(*core.ValidationError); !ok {
		t.Fatalf("Reject() with blank reason error = %v, want *core.ValidationError", err)
	}

	rejected, err := env.svc.Reject(ctx, env.admin, app.ID, "Income insufficient")
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if rejected.Status != plan.StatusRejected {
		t.Errorf("Status = %s, want %s", rejected.Status, plan.StatusRejected)
	}
	if rejected.RejectionReason != "Income insufficient" {
		t.Errorf("RejectionReason = %q, want %q", rejected.RejectionReason, "Income insufficient")
	}
	if !rejected.ApprovedAt.IsZero() {
		t.Error("ApprovedAt set on rejected application")
	}

	// terminal: no way back
	if _, err = env.svc.Approve(ctx, env.admin, app.ID); err == nil {
		t.Error("Approve() after rejection succeeded, want error")
	} else if _, ok := err.(*core.PreconditionError); !ok {
		t.Errorf("Approve() after rejection error = %v, want *core.PreconditionError", err)
	}
	if _, err = env.svc.Reject(ctx, env.admin, app.ID, "again"); err == nil {
		t.Error("second Reject() succeeded, want error")
	}

	// a rejected application no longer blocks a new submission
	submit(t, env, plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement, plan.DocTypeSalarySlip)
}

func TestDocumentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	app := submit(t, env, plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement, plan.DocTypeSalarySlip)

	docs, _ := env.svc.FilterDocuments(ctx, env.admin, &plan.DocumentFilter{ApplicationID: app.ID, Status: plan.DocStatusUploaded}, nil)
	if len(docs) == 0 {
		t.Fatal("no uploaded documents")
	}
	doc := docs[0]

	// verify a pending document fails
	pendingDocs, _ := env.svc.FilterDocuments(ctx, env.admin, &plan.DocumentFilter{ApplicationID: app.ID, Status: plan.DocStatusPending}, nil)
	if _, err := env.svc.VerifyDocument(ctx, env.admin, pendingDocs[0].ID); err == nil {
		t.Error("VerifyDocument() on pending doc succeeded, want error")
	}

	// reject with blank reason fails
	if _, err := env.svc.RejectDocument(ctx, env.admin, doc.ID, " "); err == nil {
		t.Error("RejectDocument() with blank reason succeeded, want error")
	}

	// reject, then re-upload: back to uploaded with the reason cleared
	rejected, err := env.svc.RejectDocument(ctx, env.admin, doc.ID, "unreadable scan")
	if err != nil {
		t.Fatalf("RejectDocument() error = %v", err)
	}
	if rejected.Status != plan.DocStatusRejected || rejected.RejectionReason != "unreadable scan" {
		t.Errorf("doc = %s/%q, want rejected/unreadable scan", rejected.Status, rejected.RejectionReason)
	}

	reuploaded, err := env.svc.UploadDocument(ctx, env.guardian, doc.ID, "retry.pdf", strings.NewReader("%PDF retry"))
	if err != nil {
		t.Fatalf("UploadDocument() error = %v", err)
	}
	if reuploaded.Status != plan.DocStatusUploaded {
		t.Errorf("Status = %s, want %s", reuploaded.Status, plan.DocStatusUploaded)
	}
	if reuploaded.RejectionReason != "" {
		t.Errorf("RejectionReason = %q, want cleared", reuploaded.RejectionReason)
	}

	// verified documents are final
	verified, err := env.svc.VerifyDocument(ctx, env.admin, doc.ID)
	if err != nil {
		t.Fatalf("VerifyDocument() error = %v", err)
	}
	if verified.VerifiedAt.IsZero() {
		t.Error("VerifiedAt not set")
	}
	_, err = env.svc.UploadDocument(ctx, env.guardian, doc.ID, "again.pdf", strings.NewReader("%PDF"))
	if _, ok := err.(*core.PreconditionError); !ok {
		t.Errorf("UploadDocument() on verified doc error = %v, want *core.PreconditionError", err)
	}
}

func TestDocumentReviewAuthz(t *testing.T) {
	env := newTestEnv(t)
	app := submit(t, env, plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement, plan.DocTypeSalarySlip)

	docs, _ := env.svc.FilterDocuments(ctx, env.admin, &plan.DocumentFilter{ApplicationID: app.ID, Status: plan.DocStatusUploaded}, nil)
	doc := docs[0]

	// guardians cannot review their own documents
	if _, err := env.svc.VerifyDocument(ctx, env.guardian, doc.ID); err != core.ErrPermissionDenied {
		t.Errorf("VerifyDocument() by guardian error = %v, want %v", err, core.ErrPermissionDenied)
	}
	// the owning school can
	if _, err := env.svc.VerifyDocument(ctx, env.schooler, doc.ID); err != nil {
		t.Errorf("VerifyDocument() by owning school error = %v", err)
	}
	// other guardians cannot upload
	pendingDocs, _ := env.svc.FilterDocuments(ctx, env.admin, &plan.DocumentFilter{ApplicationID: app.ID, Status: plan.DocStatusPending}, nil)
	if _, err := env.svc.UploadDocument(ctx, env.otherGdn, pendingDocs[0].ID, "f.pdf", strings.NewReader("x")); err != core.ErrPermissionDenied {
		t.Errorf("UploadDocument() by other guardian error = %v, want %v", err, core.ErrPermissionDenied)
	}
}

// scenario: the down payment is due at approval, so right after approval it
// derives overdue; paying settles it with the gateway reference; a second pay
// fails without a duplicate charge.
func TestPay(t *testing.T) {
	env := newTestEnv(t)
	app := submit(t, env,
		plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement,
		plan.DocTypeSalarySlip, plan.DocTypeUtilityBills, plan.DocTypeFeeVoucher)
	verifyAll(t, env, app.ID)
	if _, err := env.svc.Approve(ctx, env.admin, app.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	pmts, _ := env.svc.FilterPayments(ctx, env.guardian, &plan.PaymentFilter{ApplicationID: app.ID, Kind: plan.KindDownPayment}, nil)
	if len(pmts) != 1 {
		t.Fatalf("len(down payments) = %d, want 1", len(pmts))
	}
	down := pmts[0]
	if down.Status != plan.PaymentStatusOverdue {
		t.Errorf("derived status = %s, want %s", down.Status, plan.PaymentStatusOverdue)
	}

	pi := plan.PayInput{Method: plan.MethodCard}
	if err := pi.Validate(env.validate); err != nil {
		t.Fatalf("validating pay input: %v", err)
	}
	paid, err := env.svc.Pay(ctx, env.guardian, down.ID, pi)
	if err != nil {
		t.Fatalf("Pay() error = %v", err)
	}
	if paid.PaidDate == nil {
		t.Fatal("PaidDate not set")
	}
	if paid.TransactionRef == "" || !strings.HasPrefix(paid.TransactionRef, "TXN") {
		t.Errorf("TransactionRef = %q, want TXN-prefixed reference", paid.TransactionRef)
	}
	if paid.PaymentMethod != plan.MethodCard {
		t.Errorf("PaymentMethod = %s, want %s", paid.PaymentMethod, plan.MethodCard)
	}

	// idempotency: a second pay fails, no duplicate charge
	_, err = env.svc.Pay(ctx, env.guardian, down.ID, pi)
	if _, ok := err.(*core.PreconditionError); !ok {
		t.Fatalf("second Pay() error = %v, want *core.PreconditionError", err)
	}
	got, _ := env.svc.GetPayment(ctx, env.guardian, down.ID)
	if got.TransactionRef != paid.TransactionRef {
		t.Errorf("TransactionRef changed to %q after failed double pay", got.TransactionRef)
	}
}

func TestPayGatewayFailure(t *testing.T) {
	env := newTestEnv(t)
	app := submit(t, env,
		plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement,
		plan.DocTypeSalarySlip, plan.DocTypeUtilityBills, plan.DocTypeFeeVoucher)
	verifyAll(t, env, app.ID)
	if _, err := env.svc.Approve(ctx, env.admin, app.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	pmts, _ := env.svc.FilterPayments(ctx, env.guardian, &plan.PaymentFilter{ApplicationID: app.ID}, nil)
	env.gateway.Fail = context.DeadlineExceeded

	_, err := env.svc.Pay(ctx, env.guardian, pmts[0].ID, plan.PayInput{Method: plan.MethodJazzCash})
	if _, ok := err.(*core.DependencyError); !ok {
		t.Fatalf("Pay() with failing gateway error = %v, want *core.DependencyError", err)
	}

	// nothing committed; retry works after the gateway recovers
	env.gateway.Fail = nil
	paid, err := env.svc.Pay(ctx, env.guardian, pmts[0].ID, plan.PayInput{Method: plan.MethodJazzCash})
	if err != nil {
		t.Fatalf("retried Pay() error = %v", err)
	}
	if paid.PaidDate == nil {
		t.Error("PaidDate not set after retry")
	}
}

func TestPayAuthz(t *testing.T) {
	env := newTestEnv(t)
	app := submit(t, env,
		plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement,
		plan.DocTypeSalarySlip, plan.DocTypeUtilityBills, plan.DocTypeFeeVoucher)
	verifyAll(t, env, app.ID)
	if _, err := env.svc.Approve(ctx, env.admin, app.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	pmts, _ := env.svc.FilterPayments(ctx, env.guardian, &plan.PaymentFilter{ApplicationID: app.ID}, nil)

	if _, err := env.svc.Pay(ctx, env.otherGdn, pmts[0].ID, plan.PayInput{Method: plan.MethodCard}); err != core.ErrPermissionDenied {
		t.Errorf("Pay() by non-owning guardian error = %v, want %v", err, core.ErrPermissionDenied)
	}
	if _, err := env.svc.Pay(ctx, env.admin, pmts[0].ID, plan.PayInput{Method: plan.MethodCard}); err != core.ErrPermissionDenied {
		t.Errorf("Pay() by admin error = %v, want %v", err, core.ErrPermissionDenied)
	}
}

func TestQueryScoping(t *testing.T) {
	env := newTestEnv(t)
	app := submit(t, env, plan.DocTypeCNICFront, plan.DocTypeCNICBack, plan.DocTypeBankStatement, plan.DocTypeSalarySlip)

	// other guardian sees nothing
	if _, err := env.svc.GetApplication(ctx, env.otherGdn, app.ID); err != plan.ErrApplicationNotFound {
		t.Errorf("GetApplication() by other guardian error = %v, want %v", err, plan.ErrApplicationNotFound)
	}
	apps, err := env.svc.FilterApplications(ctx, env.otherGdn, &plan.ApplicationFilter{}, nil)
	if err != nil {
		t.Fatalf("FilterApplications() error = %v", err)
	}
	if len(apps) != 0 {
		t.Errorf("other guardian sees %d applications, want 0", len(apps))
	}

	// owning school sees it
	if _, err = env.svc.GetApplication(ctx, env.schooler, app.ID); err != nil {
		t.Errorf("GetApplication() by owning school error = %v", err)
	}
	apps, _ = env.svc.FilterApplications(ctx, env.schooler, &plan.ApplicationFilter{}, nil)
	if len(apps) != 1 {
		t.Errorf("owning school sees %d applications, want 1", len(apps))
	}
}
