package faults

// Standard error codes. Every code here is registered into DefaultRegistry
// at first use; the classifier only ever produces codes from this catalog.
const (
	// Network.
	CodeNetworkTimeout           = "NETWORK_TIMEOUT"
	CodeNetworkConnectionRefused = "NETWORK_CONNECTION_REFUSED"
	CodeNetworkDNSFailure        = "NETWORK_DNS_FAILURE"
	CodeNetworkTLSFailure        = "NETWORK_TLS_FAILURE"
	CodeNetworkProxyFailure      = "NETWORK_PROXY_FAILURE"
	CodeNetworkRateLimited       = "NETWORK_RATE_LIMITED"
	CodeNetworkHTTPClientError   = "NETWORK_HTTP_CLIENT_ERROR"
	CodeNetworkHTTPServerError   = "NETWORK_HTTP_SERVER_ERROR"
	CodeNetworkUnreachable       = "NETWORK_UNREACHABLE"

	// File.
	CodeFileDiskFull          = "FILE_DISK_FULL"
	CodeFilePermissionDenied  = "FILE_PERMISSION_DENIED"
	CodeFileCorrupted         = "FILE_CORRUPTED"
	CodeFileLocked            = "FILE_LOCKED"
	CodeFileSystemError       = "FILE_SYSTEM_ERROR"
	CodeFileInsufficientSpace = "FILE_INSUFFICIENT_SPACE"
	CodeFileNotFound          = "FILE_NOT_FOUND"

	// Validation.
	CodeValidationInvalidURL        = "VALIDATION_INVALID_URL"
	CodeValidationDomainNotAllowed  = "VALIDATION_DOMAIN_NOT_ALLOWED"
	CodeValidationUnsupportedFormat = "VALIDATION_UNSUPPORTED_FORMAT"
	CodeValidationOversizePayload   = "VALIDATION_OVERSIZE_PAYLOAD"
	CodeValidationCorruptedImage    = "VALIDATION_CORRUPTED_IMAGE"
	CodeValidationBadDimensions     = "VALIDATION_BAD_DIMENSIONS"

	// Session.
	CodeSessionClosed              = "SESSION_CLOSED"
	CodeSessionContentTypeMismatch = "SESSION_CONTENT_TYPE_MISMATCH"
	CodeSessionTimeout             = "SESSION_TIMEOUT"
	CodeSessionPoolExhausted       = "SESSION_POOL_EXHAUSTED"
	CodeSessionBadConfig           = "SESSION_BAD_CONFIG"
	CodeSessionCancelled           = "SESSION_CANCELLED"

	// Catch-all.
	CodeUnknown           = "UNKNOWN_ERROR"
	CodeUnknownType       = "UNKNOWN_TYPE_ERROR"
	CodeUnknownValue      = "UNKNOWN_VALUE_ERROR"
	CodeFallbackExhausted = "FALLBACK_STRATEGIES_EXHAUSTED"
)

var catalog = []Descriptor{
	// Network failures are mostly transient: retry first, fall back after.
	{CodeNetworkTimeout, CategoryNetwork, SeverityWarning, "network operation timed out", true, true},
	{CodeNetworkConnectionRefused, CategoryNetwork, SeverityError, "connection refused by remote host", true, true},
	{CodeNetworkDNSFailure, CategoryNetwork, SeverityError, "DNS resolution failed", true, true},
	{CodeNetworkTLSFailure, CategoryNetwork, SeverityError, "TLS handshake or verification failed", false, true},
	{CodeNetworkProxyFailure, CategoryNetwork, SeverityError, "proxy connection failed", true, true},
	{CodeNetworkRateLimited, CategoryNetwork, SeverityWarning, "remote host rate-limited the request", true, true},
	{CodeNetworkHTTPClientError, CategoryNetwork, SeverityWarning, "HTTP 4xx response", false, true},
	{CodeNetworkHTTPServerError, CategoryNetwork, SeverityError, "HTTP 5xx response", true, true},
	{CodeNetworkUnreachable, CategoryNetwork, SeverityError, "network unreachable", true, true},

	{CodeFileDiskFull, CategoryFile, SeverityCritical, "no space left on device", false, true},
	{CodeFilePermissionDenied, CategoryFile, SeverityError, "permission denied", true, true},
	{CodeFileCorrupted, CategoryFile, SeverityError, "file contents corrupted", false, true},
	{CodeFileLocked, CategoryFile, SeverityWarning, "file locked by another process", true, true},
	{CodeFileSystemError, CategoryFile, SeverityError, "filesystem operation failed", true, true},
	{CodeFileInsufficientSpace, CategoryFile, SeverityCritical, "insufficient space for payload", false, true},
	{CodeFileNotFound, CategoryFile, SeverityWarning, "file not found", false, true},

	{CodeValidationInvalidURL, CategoryValidation, SeverityWarning, "URL failed syntactic validation", false, true},
	{CodeValidationDomainNotAllowed, CategoryValidation, SeverityWarning, "domain not in allow-list", false, true},
	{CodeValidationUnsupportedFormat, CategoryValidation, SeverityWarning, "unsupported content format", false, true},
	{CodeValidationOversizePayload, CategoryValidation, SeverityWarning, "payload exceeds size limit", false, true},
	{CodeValidationCorruptedImage, CategoryValidation, SeverityError, "image payload failed validation", false, true},
	{CodeValidationBadDimensions, CategoryValidation, SeverityWarning, "image dimensions out of bounds", false, true},

	{CodeSessionClosed, CategorySession, SeverityError, "session closed underneath the operation", true, true},
	{CodeSessionContentTypeMismatch, CategorySession, SeverityWarning, "response content-type not allowed", false, true},
	{CodeSessionTimeout, CategorySession, SeverityWarning, "session-level timeout exceeded", true, true},
	{CodeSessionPoolExhausted, CategorySession, SeverityError, "connection pool exhausted", true, true},
	{CodeSessionBadConfig, CategorySession, SeverityError, "invalid session configuration", false, false},
	{CodeSessionCancelled, CategorySession, SeverityWarning, "operation cancelled by caller", false, false},

	{CodeUnknown, CategoryUnknown, SeverityError, "unclassified failure", false, true},
	{CodeUnknownType, CategoryUnknown, SeverityError, "unexpected value type", false, true},
	{CodeUnknownValue, CategoryUnknown, SeverityError, "unexpected value", false, true},
	{CodeFallbackExhausted, CategoryUnknown, SeverityError, "all fallback strategies exhausted", false, false},
}
