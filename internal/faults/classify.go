package faults

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// DefaultHTTPRetryable lists the HTTP statuses worth retrying. The set is a
// policy default, not a semantic: callers may override it via HTTPPolicy.
var DefaultHTTPRetryable = []int{429, 500, 502, 503, 504}

// HTTPPolicy controls how HTTP statuses map onto the taxonomy.
type HTTPPolicy struct {
	RetryableStatuses []int
}

// DefaultHTTPPolicy returns the stock status policy.
func DefaultHTTPPolicy() HTTPPolicy {
	return HTTPPolicy{RetryableStatuses: append([]int(nil), DefaultHTTPRetryable...)}
}

func (p HTTPPolicy) retryable(status int) bool {
	statuses := p.RetryableStatuses
	if len(statuses) == 0 {
		statuses = DefaultHTTPRetryable
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// FromHTTPStatus classifies a non-2xx HTTP response. Statuses below 500 are
// warnings, 500 and above are errors; retryability follows the policy set.
func (p HTTPPolicy) FromHTTPStatus(status int, rawURL string) *FetchError {
	code := CodeNetworkHTTPClientError
	switch {
	case status == 429:
		code = CodeNetworkRateLimited
	case status >= 500:
		code = CodeNetworkHTTPServerError
	}
	fe := New(code, fmt.Sprintf("HTTP %d", status), nil)
	fe.Retryable = p.retryable(status)
	if status >= 500 {
		fe.Severity = SeverityError
	} else {
		fe.Severity = SeverityWarning
	}
	fe = fe.WithContext("status", status)
	if rawURL != "" {
		fe = fe.WithContext("url", rawURL)
	}
	return fe
}

// Classify maps a raw failure onto a registered code. Already-classified
// errors pass through with extra context merged in. Unmatched failures map
// to the unknown catch-all.
func Classify(err error, ctx map[string]any) *FetchError {
	if err == nil {
		return nil
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return mergeContext(fe, ctx)
	}

	classified := classifyRaw(err)
	return mergeContext(classified, ctx)
}

func classifyRaw(err error) *FetchError {
	switch {
	case errors.Is(err, context.Canceled):
		return New(CodeSessionCancelled, "", err)
	case errors.Is(err, context.DeadlineExceeded):
		return New(CodeNetworkTimeout, "deadline exceeded", err)
	}

	// Unwrap url.Error so the checks below see the transport failure.
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		if inner := classifyRaw(urlErr.Err); inner.Code != CodeUnknown {
			return inner.WithContext("url", urlErr.URL)
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return New(CodeNetworkDNSFailure, dnsErr.Err, err)
	}

	if fe := classifyTLS(err); fe != nil {
		return fe
	}
	if fe := classifySyscall(err); fe != nil {
		return fe
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return New(CodeNetworkTimeout, "", err)
	}

	if fe := classifyFile(err); fe != nil {
		return fe
	}

	return New(CodeUnknown, err.Error(), err)
}

func classifyTLS(err error) *FetchError {
	var recordErr tls.RecordHeaderError
	var authErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var certErr x509.CertificateInvalidError
	if errors.As(err, &recordErr) || errors.As(err, &authErr) ||
		errors.As(err, &hostErr) || errors.As(err, &certErr) {
		return New(CodeNetworkTLSFailure, "", err)
	}
	return nil
}

func classifySyscall(err error) *FetchError {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return New(CodeNetworkConnectionRefused, "", err)
	case errors.Is(err, syscall.ECONNRESET):
		return New(CodeNetworkUnreachable, "connection reset", err)
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return New(CodeNetworkUnreachable, "", err)
	case errors.Is(err, syscall.ENOSPC):
		return New(CodeFileDiskFull, "", err)
	case errors.Is(err, syscall.EACCES):
		return New(CodeFilePermissionDenied, "", err)
	case errors.Is(err, syscall.EBUSY):
		return New(CodeFileLocked, "", err)
	}
	return nil
}

func classifyFile(err error) *FetchError {
	switch {
	case errors.Is(err, os.ErrPermission):
		return New(CodeFilePermissionDenied, "", err)
	case errors.Is(err, os.ErrNotExist):
		return New(CodeFileNotFound, "", err)
	}
	// Some filesystem drivers surface ENOSPC only as message text.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "no space left") || strings.Contains(msg, "disk full") {
		return New(CodeFileDiskFull, "", err)
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return New(CodeFileSystemError, pathErr.Op, err)
	}
	return nil
}

func mergeContext(fe *FetchError, ctx map[string]any) *FetchError {
	for k, v := range ctx {
		fe = fe.WithContext(k, v)
	}
	return fe
}
