package tests

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	echoapi "github.com/skoolpay/skoolpay/apps/api/echo"
	"github.com/skoolpay/skoolpay/core/account"
	"github.com/skoolpay/skoolpay/core/plan"
	testutil "github.com/skoolpay/skoolpay/tests"
)

func submitFields(studentID string) map[string]string {
	return map[string]string{
		"student_id":      studentID,
		"monthly_income":  "80000",
		"employment_type": "salaried",
	}
}

func checklistFiles(types []string) map[string][]byte {
	files := make(map[string][]byte, len(types))
	for _, typ := range types {
		files[typ] = []byte("scan of " + typ)
	}
	return files
}

func TestApplicationAPI(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, app.accountRepo, "Admin", "admin@test.pk", "LeeroyJenkins", account.RoleAdmin, "", true)
	parent := testutil.CreateUser(t, app.accountRepo, "Parent", "parent@test.pk", "LeeroyJenkins", account.RoleParent, "", true)
	otherParent := testutil.CreateUser(t, app.accountRepo, "Other", "other@test.pk", "LeeroyJenkins", account.RoleParent, "", true)

	sch := testutil.CreateSchool(t, app.schoolRepo, "City School", "city@test.pk", true)
	schoolUsr := testutil.CreateUser(t, app.accountRepo, "City School", "office@city.test.pk", "LeeroyJenkins", account.RoleSchool, sch.ID, true)
	std := testutil.CreateStudent(t, app.studentRepo, sch.ID, parent.ID, "Ali", "5", "A12", 100000)

	adminToken := app.getToken(t, admin)
	parentToken := app.getToken(t, parent)
	otherParentToken := app.getToken(t, otherParent)
	schoolToken := app.getToken(t, schoolUsr)

	t.Run("school cannot submit", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/applications", schoolToken,
			submitFields(std.ID), checklistFiles(plan.SubmissionChecklist))
		checkCode(t, app.do(req, rec), http.StatusForbidden)
	})

	t.Run("not enough documents", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/applications", parentToken,
			submitFields(std.ID), checklistFiles(plan.SubmissionChecklist[:2]))
		checkCode(t, app.do(req, rec), http.StatusBadRequest)
	})

	t.Run("not the guardian", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/applications", otherParentToken,
			submitFields(std.ID), checklistFiles(plan.SubmissionChecklist))
		checkCode(t, app.do(req, rec), http.StatusForbidden)
	})

	var application plan.Application
	t.Run("submit", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/applications", parentToken,
			submitFields(std.ID), checklistFiles(plan.SubmissionChecklist))
		checkCode(t, app.do(req, rec), http.StatusCreated)

		decodeObj(t, rec.Body, &application)
		if application.Status != plan.StatusPending {
			t.Errorf("Status = %s, want %s", application.Status, plan.StatusPending)
		}
		if application.TotalFee != 100000 || application.DownPayment != 25000 ||
			application.InstallmentAmount != 12500 || application.InstallmentCount != 6 {
			t.Errorf("breakdown = %d/%d/%d/%d, want 100000/25000/12500/6",
				application.TotalFee, application.DownPayment,
				application.InstallmentAmount, application.InstallmentCount)
		}
	})

	t.Run("duplicate active application", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/applications", parentToken,
			submitFields(std.ID), checklistFiles(plan.SubmissionChecklist))
		checkCode(t, app.do(req, rec), http.StatusConflict)
	})

	t.Run("hidden from other parents", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/applications/"+application.ID, otherParentToken)
		checkCode(t, app.do(req, rec), http.StatusNotFound)
	})

	t.Run("retrieve unknown", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/applications/lol", adminToken)
		checkCode(t, app.do(req, rec), http.StatusNotFound)
	})

	t.Run("approve before verification", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/applications/"+application.ID+"/approve", adminToken)
		checkCode(t, app.do(req, rec), http.StatusConflict)
	})

	var docs []plan.Document
	t.Run("checklist", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/applications/"+application.ID+"/documents", parentToken)
		checkCode(t, app.do(req, rec), http.StatusOK)

		decodeObj(t, rec.Body, &docs)
		if len(docs) != len(plan.SubmissionChecklist) {
			t.Fatalf("len(docs) = %d, want %d", len(docs), len(plan.SubmissionChecklist))
		}
		for _, doc := range docs {
			if doc.Status != plan.DocStatusUploaded {
				t.Errorf("doc %s Status = %s, want %s", doc.Type, doc.Status, plan.DocStatusUploaded)
			}
		}
	})

	t.Run("parent cannot verify", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/documents/"+docs[0].ID+"/verify", parentToken)
		checkCode(t, app.do(req, rec), http.StatusForbidden)
	})

	t.Run("verify documents", func(t *testing.T) {
		for _, doc := range docs {
			req, rec := newAuthRequest(http.MethodPost, "/v1/documents/"+doc.ID+"/verify", schoolToken)
			checkCode(t, app.do(req, rec), http.StatusOK)

			var got plan.Document
			decodeObj(t, rec.Body, &got)
			if got.Status != plan.DocStatusVerified {
				t.Errorf("doc %s Status = %s, want %s", got.Type, got.Status, plan.DocStatusVerified)
			}
		}
	})

	t.Run("verify twice", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/documents/"+docs[0].ID+"/verify", schoolToken)
		checkCode(t, app.do(req, rec), http.StatusConflict)
	})

	t.Run("parent cannot approve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/applications/"+application.ID+"/approve", parentToken)
		checkCode(t, app.do(req, rec), http.StatusForbidden)
	})

	t.Run("approve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/applications/"+application.ID+"/approve", adminToken)
		checkCode(t, app.do(req, rec), http.StatusOK)

		decodeObj(t, rec.Body, &application)
		if application.Status != plan.StatusApproved {
			t.Errorf("Status = %s, want %s", application.Status, plan.StatusApproved)
		}
		if application.ApprovedAt.IsZero() {
			t.Error("ApprovedAt not set")
		}
	})

	var downPayment plan.Payment
	t.Run("schedule", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/payments?application_id="+application.ID, parentToken)
		checkCode(t, app.do(req, rec), http.StatusOK)

		var pmts []plan.Payment
		decodeObj(t, rec.Body, &pmts)
		if len(pmts) != 7 {
			t.Fatalf("len(pmts) = %d, want 7", len(pmts))
		}
		var installments int
		for _, pmt := range pmts {
			switch pmt.Kind {
			case plan.KindDownPayment:
				downPayment = pmt
				if pmt.Amount != application.DownPayment {
					t.Errorf("down payment Amount = %d, want %d", pmt.Amount, application.DownPayment)
				}
				// due at approval time, so already claimable
				if pmt.Status == plan.PaymentStatusPaid {
					t.Errorf("down payment Status = %s, want unsettled", pmt.Status)
				}
			case plan.KindInstallment:
				installments++
				if pmt.Amount != application.InstallmentAmount {
					t.Errorf("installment Amount = %d, want %d", pmt.Amount, application.InstallmentAmount)
				}
				if pmt.Status != plan.PaymentStatusPending {
					t.Errorf("installment Status = %s, want %s", pmt.Status, plan.PaymentStatusPending)
				}
			}
		}
		if downPayment.ID == "" || installments != 6 {
			t.Fatalf("schedule = 1 down payment + %d installments, want 1 + 6", installments)
		}
	})

	t.Run("admin cannot pay", func(t *testing.T) {
		body := marshallObj(t, plan.PayInput{Method: plan.MethodCard})
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/"+downPayment.ID+"/pay", adminToken, body)
		checkCode(t, app.do(req, rec), http.StatusForbidden)
	})

	t.Run("unknown payment method", func(t *testing.T) {
		body := marshallObj(t, plan.PayInput{Method: "hawala"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/"+downPayment.ID+"/pay", parentToken, body)
		checkCode(t, app.do(req, rec), http.StatusBadRequest)
	})

	t.Run("pay", func(t *testing.T) {
		body := marshallObj(t, plan.PayInput{Method: plan.MethodEasyPaisa})
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/"+downPayment.ID+"/pay", parentToken, body)
		checkCode(t, app.do(req, rec), http.StatusOK)

		var pmt plan.Payment
		decodeObj(t, rec.Body, &pmt)
		if pmt.Status != plan.PaymentStatusPaid || pmt.PaidDate == nil {
			t.Errorf("Status = %s, PaidDate = %v; want settled", pmt.Status, pmt.PaidDate)
		}
		if !strings.HasPrefix(pmt.TransactionRef, "TXN") {
			t.Errorf("TransactionRef = %s, want TXN prefix", pmt.TransactionRef)
		}
	})

	t.Run("pay twice", func(t *testing.T) {
		body := marshallObj(t, plan.PayInput{Method: plan.MethodEasyPaisa})
		req, rec := newAuthRequest(http.MethodPost, "/v1/payments/"+downPayment.ID+"/pay", parentToken, body)
		checkCode(t, app.do(req, rec), http.StatusConflict)
	})

	t.Run("gateway down", func(t *testing.T) {
		app.gateway.Fail = errors.New("gateway offline")
		defer func() { app.gateway.Fail = nil }()

		req, rec := newAuthRequest(http.MethodGet, "/v1/payments?application_id="+application.ID+"&status=pending", parentToken)
		checkCode(t, app.do(req, rec), http.StatusOK)
		var pmts []plan.Payment
		decodeObj(t, rec.Body, &pmts)
		if len(pmts) != 6 {
			t.Fatalf("len(pmts) = %d, want 6", len(pmts))
		}

		body := marshallObj(t, plan.PayInput{Method: plan.MethodCard})
		req, rec = newAuthRequest(http.MethodPost, "/v1/payments/"+pmts[0].ID+"/pay", parentToken, body)
		checkCode(t, app.do(req, rec), http.StatusServiceUnavailable)
	})

	t.Run("retrieve unknown payment", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/payments/lol", parentToken)
		checkCode(t, app.do(req, rec), http.StatusNotFound)
	})
}

func TestApplicationRejectionAPI(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, app.accountRepo, "Admin", "admin@test.pk", "LeeroyJenkins", account.RoleAdmin, "", true)
	parent := testutil.CreateUser(t, app.accountRepo, "Parent", "parent@test.pk", "LeeroyJenkins", account.RoleParent, "", true)

	sch := testutil.CreateSchool(t, app.schoolRepo, "City School", "city@test.pk", true)
	schoolUsr := testutil.CreateUser(t, app.accountRepo, "City School", "office@city.test.pk", "LeeroyJenkins", account.RoleSchool, sch.ID, true)
	std := testutil.CreateStudent(t, app.studentRepo, sch.ID, parent.ID, "Sara", "4", "B07", 90000)

	adminToken := app.getToken(t, admin)
	parentToken := app.getToken(t, parent)
	schoolToken := app.getToken(t, schoolUsr)

	var application plan.Application
	t.Run("submit with minimum documents", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/applications", parentToken,
			submitFields(std.ID), checklistFiles(plan.SubmissionChecklist[:4]))
		checkCode(t, app.do(req, rec), http.StatusCreated)
		decodeObj(t, rec.Body, &application)
	})

	var pendingDoc, uploadedDoc plan.Document
	t.Run("checklist holds pending slots", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/applications/"+application.ID+"/documents", parentToken)
		checkCode(t, app.do(req, rec), http.StatusOK)

		var docs []plan.Document
		decodeObj(t, rec.Body, &docs)
		for _, doc := range docs {
			switch doc.Status {
			case plan.DocStatusPending:
				pendingDoc = doc
			case plan.DocStatusUploaded:
				uploadedDoc = doc
			}
		}
		if pendingDoc.ID == "" || uploadedDoc.ID == "" {
			t.Fatalf("docs = %+v, want both pending and uploaded entries", docs)
		}
	})

	t.Run("upload missing document", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/documents/"+pendingDoc.ID+"/upload", parentToken,
			nil, map[string][]byte{"file": []byte("scan")})
		checkCode(t, app.do(req, rec), http.StatusOK)

		var doc plan.Document
		decodeObj(t, rec.Body, &doc)
		if doc.Status != plan.DocStatusUploaded {
			t.Errorf("Status = %s, want %s", doc.Status, plan.DocStatusUploaded)
		}
	})

	t.Run("reject document without reason", func(t *testing.T) {
		body := marshallObj(t, echoapi.RejectRequest{})
		req, rec := newAuthRequest(http.MethodPost, "/v1/documents/"+uploadedDoc.ID+"/reject", schoolToken, body)
		checkCode(t, app.do(req, rec), http.StatusBadRequest)
	})

	t.Run("reject and reupload document", func(t *testing.T) {
		body := marshallObj(t, echoapi.RejectRequest{Reason: "illegible scan"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/documents/"+uploadedDoc.ID+"/reject", schoolToken, body)
		checkCode(t, app.do(req, rec), http.StatusOK)

		var doc plan.Document
		decodeObj(t, rec.Body, &doc)
		if doc.Status != plan.DocStatusRejected || doc.RejectionReason == "" {
			t.Fatalf("doc = %+v, want rejected with reason", doc)
		}

		req, rec = newMultipartRequest(t, http.MethodPost, "/v1/documents/"+doc.ID+"/upload", parentToken,
			nil, map[string][]byte{"file": []byte("better scan")})
		checkCode(t, app.do(req, rec), http.StatusOK)

		decodeObj(t, rec.Body, &doc)
		if doc.Status != plan.DocStatusUploaded || doc.RejectionReason != "" {
			t.Errorf("doc = %+v, want uploaded with reason cleared", doc)
		}
	})

	t.Run("reject application without reason", func(t *testing.T) {
		body := marshallObj(t, echoapi.RejectRequest{})
		req, rec := newAuthRequest(http.MethodPost, "/v1/applications/"+application.ID+"/reject", adminToken, body)
		checkCode(t, app.do(req, rec), http.StatusBadRequest)
	})

	t.Run("reject application", func(t *testing.T) {
		body := marshallObj(t, echoapi.RejectRequest{Reason: "income not sufficient"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/applications/"+application.ID+"/reject", adminToken, body)
		checkCode(t, app.do(req, rec), http.StatusOK)

		decodeObj(t, rec.Body, &application)
		if application.Status != plan.StatusRejected || application.RejectionReason == "" {
			t.Errorf("application = %+v, want rejected with reason", application)
		}
	})

	t.Run("reject twice", func(t *testing.T) {
		body := marshallObj(t, echoapi.RejectRequest{Reason: "again"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/applications/"+application.ID+"/reject", adminToken, body)
		checkCode(t, app.do(req, rec), http.StatusConflict)
	})

	t.Run("resubmit after rejection", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/applications", parentToken,
			submitFields(std.ID), checklistFiles(plan.SubmissionChecklist))
		checkCode(t, app.do(req, rec), http.StatusCreated)
	})
}
