package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/skoolpay/skoolpay/apps/api/echo"
	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/account"
	"github.com/skoolpay/skoolpay/core/plan"
	"github.com/skoolpay/skoolpay/core/school"
	"github.com/skoolpay/skoolpay/core/student"
	emailsvc "github.com/skoolpay/skoolpay/services/email"
	filestore "github.com/skoolpay/skoolpay/services/filestore"
	gatewaysvc "github.com/skoolpay/skoolpay/services/gateway"
	logsvc "github.com/skoolpay/skoolpay/services/logger"
	inmemdb "github.com/skoolpay/skoolpay/storage/database/inmem"
)

type testApp struct {
	server *echoapi.Server
	conf   *core.Config

	accountRepo account.Repository
	schoolRepo  school.Repository
	studentRepo student.Repository
	planRepo    plan.Repository

	accountSvc *account.Service
	planSvc    *plan.Service
	gateway    *gatewaysvc.MockGateway
	files      *filestore.MemoryStore
}

func setup(t *testing.T) *testApp {
	t.Helper()

	conf := &core.Config{
		TestMode:  true,
		Env:       "TEST",
		AppName:   "SkoolPay",
		SecretKey: "test-secret",
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
		},
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
	account.InitValidators(validate, translator)
	plan.InitValidators(validate, translator)
	account.InitTokenGenerator(conf)

	db := inmemdb.NewDB()
	accountRepo := inmemdb.NewAccountRepository(db)
	schoolRepo := inmemdb.NewSchoolRepository(db)
	studentRepo := inmemdb.NewStudentRepository(db)
	planRepo := inmemdb.NewPlanRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	files := filestore.NewMemoryStore()
	gateway := gatewaysvc.NewMockGateway(0)

	accountSvc := account.NewService(accountRepo, mailSvc, conf)
	schoolSvc := school.NewService(schoolRepo)
	studentSvc := student.NewService(studentRepo, accountSvc, student.NewSchoolLookup(schoolRepo))
	planSvc := plan.NewService(planRepo, files, gateway, student.NewDirectory(studentRepo), accountSvc, mailSvc, conf)

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logsvc.NewStdLogger(nil),
			Validate:   validate,
			Translator: translator,
			AccountSvc: accountSvc,
			SchoolSvc:  schoolSvc,
			StudentSvc: studentSvc,
			PlanSvc:    planSvc,
		},
	)

	return &testApp{
		server:      server,
		conf:        conf,
		accountRepo: accountRepo,
		schoolRepo:  schoolRepo,
		studentRepo: studentRepo,
		planRepo:    planRepo,
		accountSvc:  accountSvc,
		planSvc:     planSvc,
		gateway:     gateway,
		files:       files,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newMultipartRequest builds a multipart/form-data request from text fields
// and named file parts.
func newMultipartRequest(
	t *testing.T,
	method, path, token string,
	fields map[string]string,
	fileParts map[string][]byte,
) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, val := range fields {
		if err := w.WriteField(name, val); err != nil {
			t.Fatalf("writing form field %s: %v", name, err)
		}
	}
	for name, content := range fileParts {
		fw, err := w.CreateFormFile(name, name+".pdf")
		if err != nil {
			t.Fatalf("creating form file %s: %v", name, err)
		}
		if _, err = io.Copy(fw, bytes.NewReader(content)); err != nil {
			t.Fatalf("writing form file %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func (app *testApp) getToken(t *testing.T, usr account.User) string {
	t.Helper()

	claims := echoapi.GetUserClaims(app.conf, usr)
	token, err := echoapi.GenerateToken(app.conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func (app *testApp) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	app.server.ServeHTTP(rec, req)
	return rec
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()

	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func decodeObj(t *testing.T, body io.Reader, obj interface{}) {
	t.Helper()

	if err := json.NewDecoder(body).Decode(obj); err != nil {
		t.Fatalf("decodeObj() failed: %v", err)
	}
}

func checkCode(t *testing.T, rec *httptest.ResponseRecorder, wantCode int) {
	t.Helper()

	if rec.Code != wantCode {
		t.Fatalf("failed! code = %v; wantCode %v; body = %s", rec.Code, wantCode, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, rec *httptest.ResponseRecorder, wantCode int, wantData []byte) {
	t.Helper()

	checkCode(t, rec, wantCode)
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(wantData))
	}
}
