package log

import (
	"errors"
	"testing"
)

func TestNewDoesNotPanic(t *testing.T) {
	l := New("acmeclient-test")
	l.Info("starting up", "domain", "example.com")
	l.Error(errors.New("boom"), "something failed", "domain", "example.com")
}
