package dynamo

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/aws/smithy-go"
)

// isRetryableError returns true if the error is transient and the operation should be retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Network errors are retryable
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	// Check for AWS API errors
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()

		// Throttling errors - retryable
		if code == "Throttling" || code == "ThrottlingException" ||
			code == "ProvisionedThroughputExceededException" ||
			code == "RequestLimitExceeded" || code == "LimitExceededException" {
			return true
		}

		// Server errors (5xx) - retryable
		if code == "InternalServerError" || code == "ServiceUnavailable" ||
			code == "InternalFailure" || code == "TransactionConflictException" {
			return true
		}

		// Validation, missing table, conditional failures - not retryable
		if code == "ValidationException" || code == "ResourceNotFoundException" ||
			code == "ConditionalCheckFailedException" || code == "AccessDeniedException" {
			return false
		}
	}

	// Check error message for common patterns
	errStr := err.Error()
	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "500") {
		return true
	}

	return false
}
