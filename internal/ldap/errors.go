package ldap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrorCategory represents different categories of LDAP errors.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// LDAPError provides enhanced error information for directory operations.
type LDAPError struct {
	Operation string        // The operation that failed
	Category  ErrorCategory // Error category
	LDAPCode  uint16        // LDAP result code
	Message   string        // Human-readable message
	ServerMsg string        // Server-provided message
	Retryable bool          // Whether the error is retryable
	Cause     error         // Underlying error
}

func (e *LDAPError) Error() string {
	var parts []string

	if e.LDAPCode > 0 {
		parts = append(parts, fmt.Sprintf("LDAP %s failed (code %d)", e.Operation, e.LDAPCode))
	} else {
		parts = append(parts, fmt.Sprintf("LDAP %s failed", e.Operation))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.ServerMsg != "" && e.ServerMsg != e.Message {
		parts = append(parts, fmt.Sprintf("server: %s", e.ServerMsg))
	}

	return strings.Join(parts, " - ")
}

func (e *LDAPError) IsRetryable() bool {
	return e.Retryable
}

func (e *LDAPError) Unwrap() error {
	return e.Cause
}

// NewLDAPError creates a new LDAP error.
func NewLDAPError(operation string, err error) *LDAPError {
	if err == nil {
		return nil
	}

	ldapErr := &LDAPError{
		Operation: operation,
		Cause:     err,
	}

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		ldapErr.LDAPCode = resultErr.ResultCode
		if resultErr.Err != nil {
			ldapErr.ServerMsg = resultErr.Err.Error()
		}
		ldapErr.Category = categorizeError(resultErr.ResultCode)
		ldapErr.Retryable = isLDAPCodeRetryable(resultErr.ResultCode)
		ldapErr.Message = getLDAPCodeMessage(resultErr.ResultCode)
	} else {
		ldapErr.Category = categorizeGenericError(err)
		ldapErr.Retryable = isGenericErrorRetryable(err)
		ldapErr.Message = err.Error()
	}

	return ldapErr
}

// categorizeError categorizes an error based on LDAP result code.
func categorizeError(code uint16) ErrorCategory {
	switch code {
	case ldap.LDAPResultInvalidCredentials,
		ldap.LDAPResultInappropriateAuthentication,
		ldap.LDAPResultStrongAuthRequired,
		ldap.LDAPResultAuthMethodNotSupported:
		return ErrorCategoryAuthentication

	case ldap.LDAPResultInsufficientAccessRights,
		ldap.LDAPResultUnwillingToPerform:
		return ErrorCategoryPermission

	case ldap.LDAPResultNoSuchObject,
		ldap.LDAPResultNoSuchAttribute,
		ldap.LDAPResultUndefinedAttributeType:
		return ErrorCategoryNotFound

	case ldap.LDAPResultInvalidDNSyntax,
		ldap.LDAPResultFilterError,
		ldap.LDAPResultInappropriateMatching:
		return ErrorCategoryValidation

	case ldap.LDAPResultServerDown,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultBusy,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultAdminLimitExceeded:
		return ErrorCategoryServer

	case ldap.LDAPResultConnectError,
		ldap.LDAPResultProtocolError,
		ldap.ErrorNetwork:
		return ErrorCategoryConnection

	default:
		return ErrorCategoryUnknown
	}
}

// categorizeGenericError categorizes non-LDAP errors.
func categorizeGenericError(err error) ErrorCategory {
	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "broken pipe") {
		return ErrorCategoryConnection
	}

	if strings.Contains(errStr, "authentication") ||
		strings.Contains(errStr, "credentials") ||
		strings.Contains(errStr, "kerberos") {
		return ErrorCategoryAuthentication
	}

	return ErrorCategoryUnknown
}

// isLDAPCodeRetryable determines if an LDAP error code indicates a retryable condition.
func isLDAPCodeRetryable(code uint16) bool {
	switch code {
	case ldap.LDAPResultBusy,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultServerDown,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultConnectError,
		ldap.ErrorNetwork:
		return true
	default:
		return false
	}
}

// isGenericErrorRetryable determines if a generic error is retryable.
func isGenericErrorRetryable(err error) bool {
	errStr := strings.ToLower(err.Error())

	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"broken pipe",
		"temporary failure",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// getLDAPCodeMessage returns a human-readable message for an LDAP result code.
func getLDAPCodeMessage(code uint16) string {
	if msg, ok := ldap.LDAPResultCodeMap[code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown LDAP error (code %d)", code)
}

// WrapError wraps an error with operation context.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		return err
	}

	return NewLDAPError(operation, err)
}

// IsRetryableError checks if an error is retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		return isLDAPCodeRetryable(resultErr.ResultCode)
	}

	return isGenericErrorRetryable(err)
}

// GetErrorCategory returns the category of an error.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		return ldapErr.Category
	}

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		return categorizeError(resultErr.ResultCode)
	}

	return categorizeGenericError(err)
}

// IsAuthenticationError checks if an error indicates an authentication problem.
func IsAuthenticationError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryAuthentication
}
