package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
)

// serverError is the error payload the server sends with non-2xx responses.
type serverError struct {
	Error     string `json:"error"`
	Detail    string `json:"detail"`
	Exception string `json:"exception"`
}

// ServerDetail is the Detail payload attached when the server reported one.
type ServerDetail struct {
	Detail    string `json:"detail,omitempty"`
	Exception string `json:"exception,omitempty"`
}

// RawResponse is the Detail payload attached when the response could not be
// classified or parsed.
type RawResponse struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// Normalize maps an HTTP status and body to a structured error. It has no
// side effects: the same input always yields an equal *Error.
func Normalize(op string, status int, body []byte) *Error {
	kind := kindForStatus(status)

	var payload serverError
	parsed := len(body) > 0 && json.Unmarshal(body, &payload) == nil && payload.Error != ""

	e := &Error{Kind: kind, Op: op, Status: status}
	switch {
	case parsed:
		e.Message = payload.Error
		if payload.Detail != "" || payload.Exception != "" {
			e.Detail = ServerDetail{Detail: payload.Detail, Exception: payload.Exception}
		}
	default:
		e.Message = statusMessage(status)
		if len(body) > 0 || kind == KindUnknown {
			e.Detail = RawResponse{Status: status, Body: string(body)}
		}
	}
	return e
}

// MalformedBody reports a successful response whose body could not be decoded.
func MalformedBody(op string, status int, body []byte, cause error) *Error {
	return &Error{
		Kind:    KindServer,
		Op:      op,
		Message: "malformed response body",
		Detail:  RawResponse{Status: status, Body: string(body)},
		Status:  status,
		Err:     cause,
	}
}

// NormalizeTransport maps a failure to obtain any response (refused
// connection, timeout, DNS, cancelled context) to a transport error. An
// error that is already structured is returned as is.
func NormalizeTransport(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	return &Error{Kind: KindTransport, Op: op, Message: transportMessage(err), Err: err}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusBadRequest:
		return KindValidation
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 500 && status <= 599:
		return KindServer
	default:
		return KindUnknown
	}
}

func statusMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return strings.ToLower(text)
	}
	return "unexpected response"
}

func transportMessage(err error) string {
	var dnsErr *net.DNSError
	var opErr *net.OpError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	case errors.As(err, &dnsErr):
		return "host lookup failed"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "request timed out"
	case errors.As(err, &opErr):
		return "connection failed"
	default:
		return "request failed"
	}
}
