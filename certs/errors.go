package certs

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrNoCertificates is returned when PEM input holds no certificate blocks.
var ErrNoCertificates = errors.New("certs: no certificates found")

// CertificateParseError reports a certificate block that could not be decoded.
// Index is the zero-based position of the block in the input.
type CertificateParseError struct {
	Index int
	Err   error
}

func (e *CertificateParseError) Error() string {
	return fmt.Sprintf("certs: failed to parse certificate block %d: %v", e.Index, e.Err)
}

func (e *CertificateParseError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned when a certificate file does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("certs: file does not exist: %s", e.Path)
}

func (e *NotFoundError) Unwrap() error { return fs.ErrNotExist }
