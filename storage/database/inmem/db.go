// Package inmemdb provides map-backed repository implementations with the
// same semantics as the SQL ones (sentinel not-found errors, status-guarded
// conditional updates returning ConflictError). Used by tests.
package inmemdb

import (
	"sync"

	"github.com/skoolpay/skoolpay/core/account"
	"github.com/skoolpay/skoolpay/core/plan"
	"github.com/skoolpay/skoolpay/core/school"
	"github.com/skoolpay/skoolpay/core/student"
)

type DB struct {
	mutex sync.RWMutex

	users        map[string]*account.User
	schools      map[string]*school.School
	students     map[string]*student.Student
	applications map[string]*plan.Application
	documents    map[string]*plan.Document
	payments     map[string]*plan.Payment
}

func NewDB() *DB {
	return &DB{
		users:        make(map[string]*account.User),
		schools:      make(map[string]*school.School),
		students:     make(map[string]*student.Student),
		applications: make(map[string]*plan.Application),
		documents:    make(map[string]*plan.Document),
		payments:     make(map[string]*plan.Payment),
	}
}
