// Package pgmerr implements the error taxonomy of spec.md §7: a small set
// of domains, each with a handful of named codes, plus a diagnostic Error
// type that every API surface (wire, rxw, txw, source, receiver, socket)
// returns instead of ad hoc error strings. Packet-parse/decode errors use
// the packet domain: the wire codec returns them for an undecodable
// datagram, and the receive path counts the packet as an error and drops
// it while still returning the error to its caller. The other domains
// cover resource-exhaustion, config, and unrecoverable-loss conditions.
package pgmerr

import "fmt"

// Domain groups related error codes.
type Domain string

// Domains, matching spec.md §7.
const (
	DomainInterface Domain = "INTERFACE"
	DomainPacket    Domain = "PACKET"
	DomainSocket    Domain = "SOCKET"
	DomainTime      Domain = "TIME"
	DomainEngine    Domain = "ENGINE"
)

// Code names a specific failure within a Domain.
type Code string

// Interface domain codes.
const (
	CodeNoDev    Code = "NODEV"
	CodeNoNet    Code = "NONET"
	CodeNoName   Code = "NONAME"
	CodeNotUniq  Code = "NOTUNIQ"
	CodeXDev     Code = "XDEV"
)

// Packet domain codes.
const (
	CodeMalformed Code = "MALFORMED"
	CodeChecksum  Code = "CKSUM"
	CodeBounds    Code = "BOUNDS"
)

// Socket domain codes.
const (
	CodeFault         Code = "FAULT"
	CodeAFNoSupport   Code = "AFNOSUPPORT"
	CodeAgain         Code = "AGAIN"
	CodeInProgress    Code = "INPROGRESS"
	CodeConnReset     Code = "CONNRESET"
	CodeNoBufs        Code = "NOBUFS"
)

// Time domain codes.
const (
	CodeFailed Code = "FAILED"
	CodeNoSys  Code = "NOSYS"
)

// Engine domain codes.
const (
	CodeEngineFailed Code = "FAILED"
)

// Error is the diagnostic error carried alongside the status enum (Status,
// see status.go) that every blocking-free API returns.
type Error struct {
	Domain  Domain
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("pgm: %s/%s", e.Domain, e.Code)
	}
	return fmt.Sprintf("pgm: %s/%s: %s", e.Domain, e.Code, e.Message)
}

// New builds an Error.
func New(domain Domain, code Code, format string, args ...interface{}) *Error {
	return &Error{Domain: domain, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err is a *Error with the given domain and code, for use
// with errors.Is-style checks in tests and callers.
func Is(err error, domain Domain, code Code) bool {
	pe, ok := err.(*Error)
	if !ok {
		return false
	}
	return pe.Domain == domain && pe.Code == code
}
