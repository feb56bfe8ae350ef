package fetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ErrNetworkFatal matches every NetworkFatalError via errors.Is.
var ErrNetworkFatal = errors.New("network fatal")

// NetworkFatalError is returned once a fetch has exhausted its attempts or
// hit a failure that is not worth retrying.
type NetworkFatalError struct {
	Attempts int
	Err      error
}

func (e *NetworkFatalError) Error() string {
	return fmt.Sprintf("unable to make a request after %d attempt(s): %s %v", e.Attempts, errorTypeLabel(e.Err), e.Err)
}

func (e *NetworkFatalError) Unwrap() error {
	return e.Err
}

func (e *NetworkFatalError) Is(target error) bool {
	return target == ErrNetworkFatal
}

// ErrTimeout indicates a connect or response timeout.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a reset, aborted or refused connection.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrUnexpectedEOF indicates the peer closed the stream mid-response.
type ErrUnexpectedEOF struct {
	Err error
}

func (e ErrUnexpectedEOF) Error() string {
	return fmt.Errorf("eof: %w", e.Err).Error()
}

func (e ErrUnexpectedEOF) Unwrap() error {
	return e.Err
}

// ErrTLS indicates a handshake or transport security failure.
type ErrTLS struct {
	Err error
}

func (e ErrTLS) Error() string {
	return fmt.Errorf("tls: %w", e.Err).Error()
}

func (e ErrTLS) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var eof ErrUnexpectedEOF
	if errors.As(err, &eof) {
		return "eof"
	}
	var tlsErr ErrTLS
	if errors.As(err, &tlsErr) {
		return "tls"
	}
	return "other"
}

// classifyError wraps err in its transient class. The boolean reports
// whether the failure may be retried.
func classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}
	if errors.Is(err, context.Canceled) {
		return err, false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}, true
	}

	if isTLSError(err) {
		return ErrTLS{Err: err}, true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNREFUSED) {
		return ErrConnection{Err: err}, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return ErrConnection{Err: err}, true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrUnexpectedEOF{Err: err}, true
	}

	return err, false
}

func isTLSError(err error) bool {
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return true
	}
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return true
	}
	var authorityErr x509.UnknownAuthorityError
	if errors.As(err, &authorityErr) {
		return true
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return true
	}
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &invalidErr)
}
