package dbconn

import (
	"errors"
	"reflect"
)

// MockGormWrapper records what the catalog repositories ask of the
// database and answers reads with a canned result.
type MockGormWrapper interface {
	GormWrapper
	Created() []interface{}
	LastQuery() RecordedQuery
	SetError(error) MockGormWrapper
	SetResult(interface{}) MockGormWrapper
}

// RecordedQuery is the most recent Where and Order pair seen by the mock.
type RecordedQuery struct {
	Clause interface{}
	Args   []interface{}
	Order  interface{}
}

type mockGormWrapper struct {
	err     error
	created []interface{}
	query   *RecordedQuery
	result  interface{}
}

func Mock() MockGormWrapper {
	return &mockGormWrapper{}
}

func (m *mockGormWrapper) Created() []interface{} { return m.created }

func (m *mockGormWrapper) LastQuery() RecordedQuery {
	if m.query == nil {
		return RecordedQuery{}
	}
	return *m.query
}

func (m *mockGormWrapper) SetError(err error) MockGormWrapper {
	m.err = err
	return m
}

func (m *mockGormWrapper) SetResult(result interface{}) MockGormWrapper {
	m.result = result
	return m
}

func (m *mockGormWrapper) Error() error { return m.err }

func (m *mockGormWrapper) AutoMigrate(...interface{}) error { return nil }

func (m *mockGormWrapper) Close() error { return nil }

func (m *mockGormWrapper) Create(value interface{}) GormWrapper {
	if m.err == nil {
		m.created = append(m.created, value)
	}
	return m
}

func (m *mockGormWrapper) Where(clause interface{}, args ...interface{}) GormWrapper {
	m.query = &RecordedQuery{Clause: clause, Args: args}
	return m
}

func (m *mockGormWrapper) Order(value interface{}) GormWrapper {
	if m.query == nil {
		m.query = &RecordedQuery{}
	}
	m.query.Order = value
	return m
}

// First mirrors the repositories' use of it: a single row lookup always
// follows a Where.
func (m *mockGormWrapper) First(dest interface{}, _ ...interface{}) GormWrapper {
	if m.query == nil || m.query.Clause == nil {
		m.err = errors.New("first called without a where clause")
		return m
	}
	return m.answer(dest)
}

func (m *mockGormWrapper) Find(dest interface{}, _ ...interface{}) GormWrapper {
	return m.answer(dest)
}

func (m *mockGormWrapper) answer(dest interface{}) GormWrapper {
	if m.result == nil {
		return m
	}
	if err := assignResult(dest, m.result); err != nil && m.err == nil {
		m.err = err
	}
	return m
}

func assignResult(dest, result interface{}) error {
	ptr := reflect.ValueOf(dest)
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() {
		return errors.New("result destination must be a non nil pointer")
	}
	src := reflect.Indirect(reflect.ValueOf(result))
	if !src.Type().AssignableTo(ptr.Elem().Type()) {
		return errors.New("canned result does not match destination type")
	}
	ptr.Elem().Set(src)
	return nil
}
