package usererr

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/example/lensshop/pkg/identity"
	"github.com/sony/gobreaker/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	rejectTextPattern = regexp.MustCompile(`(?i)reject text:\s*"?([^"]+)"?`)

	cleanupPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Request ID:?\s*[a-f0-9-]+`),
		regexp.MustCompile(`(?i)Reject code:?\s*\d+`),
		regexp.MustCompile(`(?i)CBOR[^,.]*`),
		regexp.MustCompile(`(?i)Principal\s+"[^"]+"`),
	}
	whitespace = regexp.MustCompile(`\s+`)
)

// SanitizeAuthFlow classifies an error raised while signing in, saving the
// profile or verifying the phone.
func SanitizeAuthFlow(err error) *Error {
	if err == nil {
		return New(KindGeneric, MsgUnexpected)
	}
	if ue, ok := As(err); ok {
		return ue
	}
	if unavailable(err) {
		return Wrap(KindServiceUnavailable, err, MsgServiceUnavailable)
	}
	if errors.Is(err, identity.ErrAnonymous) || errors.Is(err, identity.ErrInvalidCredential) {
		return Wrap(KindAuthenticationRequired, err, MsgSignIn)
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.Unauthenticated {
		return Wrap(KindAuthenticationRequired, err, MsgSignIn)
	}

	msg := errorText(err)
	lower := strings.ToLower(msg)

	if containsAny(lower, "unauthorized", "anonymous", "not authenticated", "authentication required") {
		return Wrap(KindAuthenticationRequired, err, MsgSignIn)
	}

	if containsAny(lower, "reject code", "reject text") {
		if m := rejectTextPattern.FindStringSubmatch(msg); len(m) > 1 {
			text := strings.TrimSpace(m[1])
			if containsAny(strings.ToLower(text), "unauthorized", "anonymous") {
				return Wrap(KindAuthenticationRequired, err, MsgSignIn)
			}
			if text != "" {
				return Wrap(KindGeneric, err, text)
			}
		}
	}

	switch {
	case strings.Contains(lower, "profile not found"):
		return Wrap(KindProfileNotFound, err, MsgProfileNotFound)
	case strings.Contains(lower, "invalid or expired"):
		return Wrap(KindInvalidOrExpiredCode, err, MsgInvalidCode)
	case strings.Contains(lower, "can only verify the phone number in your profile"):
		return Wrap(KindGeneric, err, MsgPhoneMismatch)
	case containsAny(lower, "backend not available", "actor not available"):
		return Wrap(KindServiceUnavailable, err, MsgServiceUnavailable)
	}

	cleaned := clean(msg)
	if len(cleaned) < 10 {
		return Wrap(KindGeneric, err, MsgGeneric)
	}
	return Wrap(KindGeneric, err, cleaned)
}

// SanitizeStorefront classifies an error raised while browsing the catalog
// or placing an order. It returns nil for a nil error.
func SanitizeStorefront(err error) *Error {
	if err == nil {
		return nil
	}
	if ue, ok := As(err); ok {
		return ue
	}
	if unavailable(err) || stoppedBackend(errorText(err)) {
		return Wrap(KindServiceUnavailable, err, MsgStoreUnavailable)
	}

	msg := errorText(err)
	if transportRejection(msg) {
		return Wrap(KindServiceUnavailable, err, MsgStoreConnection)
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.NotFound:
			return Wrap(KindNotFound, err, clean(msg))
		case codes.Unauthenticated:
			return Wrap(KindAuthenticationRequired, err, MsgSignIn)
		case codes.PermissionDenied:
			return Wrap(KindForbidden, err, MsgAccessDenied)
		case codes.InvalidArgument, codes.FailedPrecondition, codes.AlreadyExists:
			return Wrap(KindConflict, err, clean(msg))
		}
	}

	if len(msg) > 200 || containsAny(msg, "canister", "principal", "trap") {
		return Wrap(KindGeneric, err, MsgStoreGeneric)
	}
	return Wrap(KindGeneric, err, msg)
}

func unavailable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded:
			return true
		}
	}
	return false
}

func stoppedBackend(msg string) bool {
	return containsAny(msg, "IC0508", "Reject code: 5", "is stopped", "CallContextManager")
}

func transportRejection(msg string) bool {
	return containsAny(msg,
		"replica returned a rejection",
		"Request ID:",
		"Reject code:",
		"Reject text:",
		"__principal__",
		"CBOR", "cbor",
		"HTTP details:",
	)
}

// errorText prefers the message of the innermost gRPC status so neither
// wrapping context nor the "rpc error: code = ..." prefix reaches users.
func errorText(err error) string {
	var se interface{ GRPCStatus() *status.Status }
	if errors.As(err, &se) {
		return se.GRPCStatus().Message()
	}
	return err.Error()
}

func clean(msg string) string {
	for _, p := range cleanupPatterns {
		msg = p.ReplaceAllString(msg, "")
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(msg, " "))
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
