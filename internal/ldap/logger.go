package ldap

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Subsystem is the tflog subsystem for directory access.
const Subsystem = "ldap"

// LogOperation is a helper function to log an operation with timing.
func LogOperation(ctx context.Context, subsystem, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	logFields := make(map[string]any, len(fields)+3)
	for k, v := range SanitizeFields(fields) {
		logFields[k] = v
	}
	logFields["operation"] = operation

	tflog.SubsystemDebug(ctx, subsystem, "Starting operation", logFields)

	err := fn()

	logFields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		logFields["error"] = err.Error()
		tflog.SubsystemDebug(ctx, subsystem, "Operation failed", logFields)
	} else {
		tflog.SubsystemDebug(ctx, subsystem, "Operation completed successfully", logFields)
	}

	return err
}

// LogLDAPError logs LDAP-specific error information.
func LogLDAPError(ctx context.Context, subsystem string, operation string, err error, fields map[string]any) {
	logFields := SanitizeFields(fields)
	logFields["operation"] = operation
	logFields["error"] = err.Error()

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		logFields["ldap_result_code"] = ldapErr.ResultCode
		if ldapErr.MatchedDN != "" {
			logFields["ldap_matched_dn"] = ldapErr.MatchedDN
		}
		if ldapErr.Err != nil {
			logFields["ldap_diagnostic_message"] = ldapErr.Err.Error()
		}
	}

	tflog.SubsystemError(ctx, subsystem, "LDAP operation failed", logFields)
}

// LogConnectionEvent logs connection-related events.
func LogConnectionEvent(ctx context.Context, event string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["event"] = event

	switch event {
	case "connection_established":
		tflog.SubsystemInfo(ctx, Subsystem, "Connection event", fields)
	case "connection_failed":
		tflog.SubsystemWarn(ctx, Subsystem, "Connection event", fields)
	default:
		tflog.SubsystemDebug(ctx, Subsystem, "Connection event", fields)
	}
}

// LogKerberosEvent logs Kerberos-specific events.
func LogKerberosEvent(ctx context.Context, event string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}

	fields["event"] = event

	switch event {
	case "ticket_acquired", "keytab_loaded":
		tflog.SubsystemInfo(ctx, Subsystem, "Kerberos event", fields)
	case "authentication_failed":
		tflog.SubsystemError(ctx, Subsystem, "Kerberos event", fields)
	default:
		tflog.SubsystemDebug(ctx, Subsystem, "Kerberos event", fields)
	}
}

var sensitiveKeys = map[string]bool{
	"password":    true,
	"passwd":      true,
	"bind_pass":   true,
	"secret":      true,
	"token":       true,
	"key":         true,
	"private_key": true,
	"credential":  true,
	"credentials": true,
}

// SanitizeFields returns a copy of fields with sensitive values redacted.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	for k, v := range fields {
		if sensitiveKeys[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && containsSensitivePattern(str) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

// containsSensitivePattern checks if a string contains patterns that might be sensitive.
func containsSensitivePattern(s string) bool {
	lower := strings.ToLower(s)
	for _, pattern := range []string{"password=", "passwd=", "secret=", "token=", "key="} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
