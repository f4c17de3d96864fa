package middleware

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Input validation and sanitization utilities

var (
	tenantPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	// GSTIN path values: alphanumeric, at most 20 chars
	gstinPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,20}$`)
)

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateTenantID validates tenant ID format
func ValidateTenantID(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant ID cannot be empty")
	}
	if !tenantPattern.MatchString(tenant) {
		return fmt.Errorf("invalid tenant ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateDatasetID validates dataset ID format (uuid)
func ValidateDatasetID(id string) error {
	if id == "" {
		return fmt.Errorf("dataset ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid dataset ID format")
	}
	return nil
}

// ValidateGSTIN validates a seller/buyer GSTIN path value
func ValidateGSTIN(gstin string) error {
	if !gstinPattern.MatchString(gstin) {
		return fmt.Errorf("invalid GSTIN format")
	}
	return nil
}

// ValidatePageSize validates pagination page size
func ValidatePageSize(size int) int {
	if size <= 0 {
		return 20 // default
	}
	if size > 100 {
		return 100 // max limit
	}
	return size
}
