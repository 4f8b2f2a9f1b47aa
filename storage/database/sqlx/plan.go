package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/plan"
)

type planRepository struct {
	db *sqlx.DB
}

var _ plan.Repository = (*planRepository)(nil)

func NewPlanRepository(db *sqlx.DB) *planRepository {
	return &planRepository{db: db}
}

type applicationRow struct {
	ID                string       `db:"id"`
	StudentID         string       `db:"student_id"`
	GuardianID        string       `db:"guardian_id"`
	SchoolID          string       `db:"school_id"`
	TotalFee          int64        `db:"total_fee"`
	DownPayment       int64        `db:"down_payment"`
	InstallmentAmount int64        `db:"installment_amount"`
	InstallmentCount  int          `db:"installment_count"`
	DownPaymentRatio  float64      `db:"down_payment_ratio"`
	Status            string       `db:"status"`
	AppliedAt         time.Time    `db:"applied_at"`
	ApprovedAt        sql.NullTime `db:"approved_at"`
	RejectionReason   string       `db:"rejection_reason"`
	MonthlyIncome     int64        `db:"monthly_income"`
	EmploymentType    string       `db:"employment_type"`
	AdditionalInfo    string       `db:"additional_info"`
	CreatedAt         time.Time    `db:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at"`
}

func (r applicationRow) application() plan.Application {
	app := plan.Application{
		ID:                r.ID,
		StudentID:         r.StudentID,
		GuardianID:        r.GuardianID,
		SchoolID:          r.SchoolID,
		TotalFee:          r.TotalFee,
		DownPayment:       r.DownPayment,
		InstallmentAmount: r.InstallmentAmount,
		InstallmentCount:  r.InstallmentCount,
		DownPaymentRatio:  r.DownPaymentRatio,
		Status:            r.Status,
		AppliedAt:         r.AppliedAt,
		RejectionReason:   r.RejectionReason,
		MonthlyIncome:     r.MonthlyIncome,
		EmploymentType:    r.EmploymentType,
		AdditionalInfo:    r.AdditionalInfo,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.ApprovedAt.Valid {
		app.ApprovedAt = r.ApprovedAt.Time
	}
	return app
}

type documentRow struct {
	ID              string       `db:"id"`
	ApplicationID   string       `db:"application_id"`
	Type            string       `db:"type"`
	Status          string       `db:"status"`
	FileRef         string       `db:"file_ref"`
	UploadedAt      sql.NullTime `db:"uploaded_at"`
	VerifiedAt      sql.NullTime `db:"verified_at"`
	RejectionReason string       `db:"rejection_reason"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

func (r documentRow) document() plan.Document {
	doc := plan.Document{
		ID:              r.ID,
		ApplicationID:   r.ApplicationID,
		Type:            r.Type,
		Status:          r.Status,
		FileRef:         r.FileRef,
		RejectionReason: r.RejectionReason,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.UploadedAt.Valid {
		doc.UploadedAt = r.UploadedAt.Time
	}
	if r.VerifiedAt.Valid {
		doc.VerifiedAt = r.VerifiedAt.Time
	}
	return doc
}

type paymentRow struct {
	ID                string       `db:"id"`
	ApplicationID     string       `db:"application_id"`
	GuardianID        string       `db:"guardian_id"`
	Amount            int64        `db:"amount"`
	Kind              string       `db:"kind"`
	InstallmentNumber int          `db:"installment_number"`
	DueDate           time.Time    `db:"due_date"`
	Status            string       `db:"status"`
	PaidDate          sql.NullTime `db:"paid_date"`
	PaymentMethod     string       `db:"payment_method"`
	TransactionRef    string       `db:"transaction_ref"`
	CreatedAt         time.Time    `db:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at"`
}

func (r paymentRow) payment() plan.Payment {
	pmt := plan.Payment{
		ID:                r.ID,
		ApplicationID:     r.ApplicationID,
		GuardianID:        r.GuardianID,
		Amount:            r.Amount,
		Kind:              r.Kind,
		InstallmentNumber: r.InstallmentNumber,
		DueDate:           r.DueDate,
		Status:            r.Status,
		PaymentMethod:     r.PaymentMethod,
		TransactionRef:    r.TransactionRef,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.PaidDate.Valid {
		t := r.PaidDate.Time
		pmt.PaidDate = &t
	}
	return pmt
}

func (repo *planRepository) CreateApplication(ctx context.Context, app plan.Application, docs []plan.Document) (plan.Application, error) {
	if app.ID == "" {
		app.ID = uuid.New().String()
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return plan.Application{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	const appQuery = `
		INSERT INTO application (id, student_id, guardian_id, school_id, total_fee, down_payment, installment_amount,
			installment_count, down_payment_ratio, status, applied_at, approved_at, rejection_reason,
			monthly_income, employment_type, additional_info, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err = tx.ExecContext(ctx, appQuery,
		app.ID, app.StudentID, app.GuardianID, app.SchoolID, app.TotalFee, app.DownPayment, app.InstallmentAmount,
		app.InstallmentCount, app.DownPaymentRatio, app.Status, app.AppliedAt, nullTime(app.ApprovedAt),
		app.RejectionReason, app.MonthlyIncome, app.EmploymentType, app.AdditionalInfo, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return plan.Application{}, errors.Wrap(err, "creating application")
	}

	const docQuery = `
		INSERT INTO document (id, application_id, type, status, file_ref, uploaded_at, verified_at, rejection_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx, docQuery,
			doc.ID, app.ID, doc.Type, doc.Status, doc.FileRef, nullTime(doc.UploadedAt), nullTime(doc.VerifiedAt),
			doc.RejectionReason, doc.CreatedAt, doc.UpdatedAt)
		if err != nil {
			return plan.Application{}, errors.Wrap(err, "creating document")
		}
	}

	if err = tx.Commit(); err != nil {
		return plan.Application{}, errors.Wrap(err, "committing transaction")
	}
	return app, nil
}

func (repo *planRepository) GetApplicationByID(ctx context.Context, id string) (plan.Application, error) {
	var row applicationRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM application WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return plan.Application{}, plan.ErrApplicationNotFound
		}
		return plan.Application{}, errors.Wrap(err, "getting application")
	}
	return row.application(), nil
}

func (repo *planRepository) FilterApplications(ctx context.Context, filter plan.ApplicationFilter, ordering []core.DBOrdering) ([]plan.Application, error) {
	query := `SELECT * FROM application WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "?"
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(filter.Status)
	}
	if filter.StudentID != "" {
		query += ` AND student_id = ` + arg(filter.StudentID)
	}
	if filter.GuardianID != "" {
		query += ` AND guardian_id = ` + arg(filter.GuardianID)
	}
	if filter.SchoolID != "" {
		query += ` AND school_id = ` + arg(filter.SchoolID)
	}
	query += orderBy(ordering)

	var rows []applicationRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "filtering applications")
	}
	apps := make([]plan.Application, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, row.application())
	}
	return apps, nil
}

func (repo *planRepository) ActiveApplicationExists(ctx context.Context, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM application WHERE student_id = $1 AND status IN ($2, $3))`
	var exists bool
	if err := repo.db.GetContext(ctx, &exists, query, studentID, plan.StatusPending, plan.StatusApproved); err != nil {
		return false, errors.Wrap(err, "checking active application")
	}
	return exists, nil
}

const updateApplicationQuery = `
	UPDATE application
	SET status = $1, approved_at = $2, rejection_reason = $3, updated_at = $4
	WHERE id = $5 AND status = $6`

func (repo *planRepository) UpdateApplication(ctx context.Context, app plan.Application, fromStatus string) (plan.Application, error) {
	res, err := repo.db.ExecContext(ctx, updateApplicationQuery,
		app.Status, nullTime(app.ApprovedAt), app.RejectionReason, app.UpdatedAt, app.ID, fromStatus)
	if err != nil {
		return plan.Application{}, errors.Wrap(err, "updating application")
	}
	if err = repo.checkGuard(ctx, res, `SELECT EXISTS (SELECT 1 FROM application WHERE id = $1)`, app.ID, plan.ErrApplicationNotFound); err != nil {
		return plan.Application{}, err
	}
	return repo.GetApplicationByID(ctx, app.ID)
}

func (repo *planRepository) ApproveApplication(ctx context.Context, app plan.Application, fromStatus string, schedule []plan.Payment) (plan.Application, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return plan.Application{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, updateApplicationQuery,
		app.Status, nullTime(app.ApprovedAt), app.RejectionReason, app.UpdatedAt, app.ID, fromStatus)
	if err != nil {
		return plan.Application{}, errors.Wrap(err, "updating application")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return plan.Application{}, core.NewConflictError(errors.New("application changed since it was read"))
	}

	const pmtQuery = `
		INSERT INTO payment (id, application_id, guardian_id, amount, kind, installment_number, due_date, status,
			paid_date, payment_method, transaction_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	for _, pmt := range schedule {
		if pmt.ID == "" {
			pmt.ID = uuid.New().String()
		}
		var paid sql.NullTime
		if pmt.PaidDate != nil {
			paid = sql.NullTime{Time: *pmt.PaidDate, Valid: true}
		}
		_, err = tx.ExecContext(ctx, pmtQuery,
			pmt.ID, pmt.ApplicationID, pmt.GuardianID, pmt.Amount, pmt.Kind, pmt.InstallmentNumber, pmt.DueDate,
			pmt.Status, paid, pmt.PaymentMethod, pmt.TransactionRef, pmt.CreatedAt, pmt.UpdatedAt)
		if err != nil {
			return plan.Application{}, errors.Wrap(err, "creating payment")
		}
	}

	if err = tx.Commit(); err != nil {
		return plan.Application{}, errors.Wrap(err, "committing transaction")
	}
	return repo.GetApplicationByID(ctx, app.ID)
}

func (repo *planRepository) GetDocumentByID(ctx context.Context, id string) (plan.Document, error) {
	var row documentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM document WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return plan.Document{}, plan.ErrDocumentNotFound
		}
		return plan.Document{}, errors.Wrap(err, "getting document")
	}
	return row.document(), nil
}

func (repo *planRepository) FilterDocuments(ctx context.Context, filter plan.DocumentFilter, ordering []core.DBOrdering) ([]plan.Document, error) {
	query := `SELECT d.* FROM document d JOIN application a ON a.id = d.application_id WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "?"
	}

	if filter.ApplicationID != "" {
		query += ` AND d.application_id = ` + arg(filter.ApplicationID)
	}
	if filter.Status != "" {
		query += ` AND d.status = ` + arg(filter.Status)
	}
	if filter.Type != "" {
		query += ` AND d.type = ` + arg(filter.Type)
	}
	if filter.GuardianID != "" {
		query += ` AND a.guardian_id = ` + arg(filter.GuardianID)
	}
	if filter.SchoolID != "" {
		query += ` AND a.school_id = ` + arg(filter.SchoolID)
	}
	query += orderBy(ordering)

	var rows []documentRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "filtering documents")
	}
	docs := make([]plan.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.document())
	}
	return docs, nil
}

func (repo *planRepository) UpdateDocument(ctx context.Context, doc plan.Document, fromStatuses ...string) (plan.Document, error) {
	query := `
		UPDATE document
		SET status = ?, file_ref = ?, uploaded_at = ?, verified_at = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ? AND status IN (?)`
	query, args, err := sqlx.In(query,
		doc.Status, doc.FileRef, nullTime(doc.UploadedAt), nullTime(doc.VerifiedAt), doc.RejectionReason,
		doc.UpdatedAt, doc.ID, fromStatuses)
	if err != nil {
		return plan.Document{}, errors.Wrap(err, "building query")
	}

	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(query), args...)
	if err != nil {
		return plan.Document{}, errors.Wrap(err, "updating document")
	}
	if err = repo.checkGuard(ctx, res, `SELECT EXISTS (SELECT 1 FROM document WHERE id = $1)`, doc.ID, plan.ErrDocumentNotFound); err != nil {
		return plan.Document{}, err
	}
	return repo.GetDocumentByID(ctx, doc.ID)
}

func (repo *planRepository) GetPaymentByID(ctx context.Context, id string) (plan.Payment, error) {
	var row paymentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM payment WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return plan.Payment{}, plan.ErrPaymentNotFound
		}
		return plan.Payment{}, errors.Wrap(err, "getting payment")
	}
	return row.payment(), nil
}

func (repo *planRepository) FilterPayments(ctx context.Context, filter plan.PaymentFilter, ordering []core.DBOrdering) ([]plan.Payment, error) {
	query := `SELECT p.* FROM payment p JOIN application a ON a.id = p.application_id WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "?"
	}

	if filter.ApplicationID != "" {
		query += ` AND p.application_id = ` + arg(filter.ApplicationID)
	}
	if filter.Kind != "" {
		query += ` AND p.kind = ` + arg(filter.Kind)
	}
	if filter.GuardianID != "" {
		query += ` AND p.guardian_id = ` + arg(filter.GuardianID)
	}
	if filter.SchoolID != "" {
		query += ` AND a.school_id = ` + arg(filter.SchoolID)
	}
	query += orderBy(ordering)

	var rows []paymentRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "filtering payments")
	}
	pmts := make([]plan.Payment, 0, len(rows))
	for _, row := range rows {
		pmts = append(pmts, row.payment())
	}
	return pmts, nil
}

func (repo *planRepository) MarkPaymentPaid(ctx context.Context, pmt plan.Payment) (plan.Payment, error) {
	var paid sql.NullTime
	if pmt.PaidDate != nil {
		paid = sql.NullTime{Time: *pmt.PaidDate, Valid: true}
	}
	const query = `
		UPDATE payment
		SET status = $1, paid_date = $2, payment_method = $3, transaction_ref = $4, updated_at = $5
		WHERE id = $6 AND paid_date IS NULL`
	res, err := repo.db.ExecContext(ctx, query,
		pmt.Status, paid, pmt.PaymentMethod, pmt.TransactionRef, pmt.UpdatedAt, pmt.ID)
	if err != nil {
		return plan.Payment{}, errors.Wrap(err, "marking payment paid")
	}
	if err = repo.checkGuard(ctx, res, `SELECT EXISTS (SELECT 1 FROM payment WHERE id = $1)`, pmt.ID, plan.ErrPaymentNotFound); err != nil {
		return plan.Payment{}, err
	}
	return repo.GetPaymentByID(ctx, pmt.ID)
}

// checkGuard inspects a guarded update's result: zero rows affected means
// either the entity is gone (notFoundErr) or the guard no longer matched
// (ConflictError).
func (repo *planRepository) checkGuard(ctx context.Context, res sql.Result, existsQuery, id string, notFoundErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "checking rows affected")
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err = repo.db.GetContext(ctx, &exists, existsQuery, id); err != nil {
		return errors.Wrap(err, "checking existence")
	}
	if !exists {
		return notFoundErr
	}
	return core.NewConflictError(errors.New("entity changed since it was read"))
}
