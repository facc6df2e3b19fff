package service

import (
	"testing"

	"go.uber.org/goleak"
)

// TestPackageLeaks verifies that no goroutines are leaked by the package tests
func TestPackageLeaks(t *testing.T) {
	defer goleak.VerifyNone(t)
}
