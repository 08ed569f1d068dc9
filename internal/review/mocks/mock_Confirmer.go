// Package mocks provides test doubles for review prompts.
package mocks

import (
	mock "github.com/stretchr/testify/mock"
)

// MockConfirmer is a mock type for the Confirmer interface.
type MockConfirmer struct {
	mock.Mock
}

// Confirm provides a mock function with given fields: prompt
func (_m *MockConfirmer) Confirm(prompt string) (bool, error) {
	ret := _m.Called(prompt)

	if len(ret) == 0 {
		panic("no return value specified for Confirm")
	}

	var r0 bool
	var r1 error
	if rf, ok := ret.Get(0).(func(string) (bool, error)); ok {
		return rf(prompt)
	}
	if rf, ok := ret.Get(0).(func(string) bool); ok {
		r0 = rf(prompt)
	} else {
		r0 = ret.Get(0).(bool)
	}

	if rf, ok := ret.Get(1).(func(string) error); ok {
		r1 = rf(prompt)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockConfirmer creates a new instance of MockConfirmer.
func NewMockConfirmer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockConfirmer {
	mock := &MockConfirmer{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
