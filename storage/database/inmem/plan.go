package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/skoolpay/skoolpay/core"
	"github.com/skoolpay/skoolpay/core/plan"
)

type planRepository struct {
	db *DB
}

var _ plan.Repository = (*planRepository)(nil)

func NewPlanRepository(db *DB) *planRepository {
	return &planRepository{db: db}
}

func (repo *planRepository) CreateApplication(ctx context.Context, app plan.Application, docs []plan.Document) (plan.Application, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	repo.db.applications[app.ID] = &app
	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.New().String()
		}
		doc.ApplicationID = app.ID
		d := doc
		repo.db.documents[doc.ID] = &d
	}
	return app, nil
}

func (repo *planRepository) GetApplicationByID(ctx context.Context, id string) (plan.Application, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if app, ok := repo.db.applications[id]; ok {
		return *app, nil
	}
	return plan.Application{}, plan.ErrApplicationNotFound
}

func (repo *planRepository) FilterApplications(ctx context.Context, filter plan.ApplicationFilter, ordering []core.DBOrdering) ([]plan.Application, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	apps := make([]plan.Application, 0)
	for _, app := range repo.db.applications {
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		if filter.StudentID != "" && app.StudentID != filter.StudentID {
			continue
		}
		if filter.GuardianID != "" && app.GuardianID != filter.GuardianID {
			continue
		}
		if filter.SchoolID != "" && app.SchoolID != filter.SchoolID {
			continue
		}
		apps = append(apps, *app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].CreatedAt.Before(apps[j].CreatedAt) })
	return apps, nil
}

func (repo *planRepository) ActiveApplicationExists(ctx context.Context, studentID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, app := range repo.db.applications {
		if app.StudentID == studentID && app.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (repo *planRepository) UpdateApplication(ctx context.Context, app plan.Application, fromStatus string) (plan.Application, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	return repo.updateApplication(app, fromStatus)
}

// updateApplication must be called with the write lock held.
func (repo *planRepository) updateApplication(app plan.Application, fromStatus string) (plan.Application, error) {
	origApp, ok := repo.db.applications[app.ID]
	if !ok {
		return plan.Application{}, plan.ErrApplicationNotFound
	}
	if origApp.Status != fromStatus {
		return plan.Application{}, core.NewConflictError(errors.New("application changed since it was read"))
	}
	origApp.Status = app.Status
	origApp.ApprovedAt = app.ApprovedAt
	origApp.RejectionReason = app.RejectionReason
	origApp.UpdatedAt = app.UpdatedAt
	return *origApp, nil
}

func (repo *planRepository) ApproveApplication(ctx context.Context, app plan.Application, fromStatus string, schedule []plan.Payment) (plan.Application, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	updated, err := repo.updateApplication(app, fromStatus)
	if err != nil {
		return plan.Application{}, err
	}
	for _, pmt := range schedule {
		if pmt.ID == "" {
			pmt.ID = uuid.New().String()
		}
		p := pmt
		repo.db.payments[pmt.ID] = &p
	}
	return updated, nil
}

func (repo *planRepository) GetDocumentByID(ctx context.Context, id string) (plan.Document, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if doc, ok := repo.db.documents[id]; ok {
		return *doc, nil
	}
	return plan.Document{}, plan.ErrDocumentNotFound
}

func (repo *planRepository) FilterDocuments(ctx context.Context, filter plan.DocumentFilter, ordering []core.DBOrdering) ([]plan.Document, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	docs := make([]plan.Document, 0)
	for _, doc := range repo.db.documents {
		if filter.ApplicationID != "" && doc.ApplicationID != filter.ApplicationID {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.Type != "" && doc.Type != filter.Type {
			continue
		}
		if filter.GuardianID != "" || filter.SchoolID != "" {
			app, ok := repo.db.applications[doc.ApplicationID]
			if !ok {
				continue
			}
			if filter.GuardianID != "" && app.GuardianID != filter.GuardianID {
				continue
			}
			if filter.SchoolID != "" && app.SchoolID != filter.SchoolID {
				continue
			}
		}
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Type < docs[j].Type })
	return docs, nil
}

func (repo *planRepository) UpdateDocument(ctx context.Context, doc plan.Document, fromStatuses ...string) (plan.Document, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	origDoc, ok := repo.db.documents[doc.ID]
	if !ok {
		return plan.Document{}, plan.ErrDocumentNotFound
	}
	var guarded bool
	for _, status := range fromStatuses {
		if origDoc.Status == status {
			guarded = true
			break
		}
	}
	if !guarded {
		return plan.Document{}, core.NewConflictError(errors.New("document changed since it was read"))
	}
	origDoc.Status = doc.Status
	origDoc.FileRef = doc.FileRef
	origDoc.UploadedAt = doc.UploadedAt
	origDoc.VerifiedAt = doc.VerifiedAt
	origDoc.RejectionReason = doc.RejectionReason
	origDoc.UpdatedAt = doc.UpdatedAt
	return *origDoc, nil
}

func (repo *planRepository) GetPaymentByID(ctx context.Context, id string) (plan.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if pmt, ok := repo.db.payments[id]; ok {
		return *pmt, nil
	}
	return plan.Payment{}, plan.ErrPaymentNotFound
}

func (repo *planRepository) FilterPayments(ctx context.Context, filter plan.PaymentFilter, ordering []core.DBOrdering) ([]plan.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	pmts := make([]plan.Payment, 0)
	for _, pmt := range repo.db.payments {
		if filter.ApplicationID != "" && pmt.ApplicationID != filter.ApplicationID {
			continue
		}
		if filter.Kind != "" && pmt.Kind != filter.Kind {
			continue
		}
		if filter.GuardianID != "" && pmt.GuardianID != filter.GuardianID {
			continue
		}
		if filter.SchoolID != "" {
			app, ok := repo.db.applications[pmt.ApplicationID]
			if !ok || app.SchoolID != filter.SchoolID {
				continue
			}
		}
		pmts = append(pmts, *pmt)
	}
	sort.Slice(pmts, func(i, j int) bool { return pmts[i].DueDate.Before(pmts[j].DueDate) })
	return pmts, nil
}

func (repo *planRepository) MarkPaymentPaid(ctx context.Context, pmt plan.Payment) (plan.Payment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	origPmt, ok := repo.db.payments[pmt.ID]
	if !ok {
		return plan.Payment{}, plan.ErrPaymentNotFound
	}
	if origPmt.PaidDate != nil {
		return plan.Payment{}, core.NewConflictError(errors.New("payment changed since it was read"))
	}
	origPmt.Status = pmt.Status
	origPmt.PaidDate = pmt.PaidDate
	origPmt.PaymentMethod = pmt.PaymentMethod
	origPmt.TransactionRef = pmt.TransactionRef
	origPmt.UpdatedAt = pmt.UpdatedAt
	return *origPmt, nil
}
