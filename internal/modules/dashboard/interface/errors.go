package transport

import (
	"context"
	"errors"
	"net"
	"net/http"

	"bizdash/internal/modules/dashboard/application/usecase"
	"bizdash/internal/modules/dashboard/domain"
	resinfra "bizdash/internal/modules/resources/infrastructure"
	"bizdash/internal/modules/selection"
	"bizdash/internal/platform/gateway"
	"bizdash/internal/shared/auth"
	"bizdash/internal/shared/httputil"
)

func upstreamForbidden(err error) bool {
	var ae *gateway.AuthError
	return errors.As(err, &ae) && ae.Status == http.StatusForbidden
}

func upstreamStatus(match func(int) bool) func(error) bool {
	return func(err error) bool {
		var he *gateway.HTTPError
		return errors.As(err, &he) && match(he.Status)
	}
}

func upstreamTimeout(err error) bool {
	var te *gateway.TransportError
	if !errors.As(err, &te) {
		return false
	}
	if errors.Is(te.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(te.Err, &ne) && ne.Timeout()
}

func kindIs(kind gateway.Kind) func(error) bool {
	return func(err error) bool { return gateway.Classify(err) == kind }
}

// newErrorMapper maps session, resource and gateway errors onto responses.
func newErrorMapper() *httputil.ErrorMapper {
	return httputil.NewErrorMapper().
		WithMapping(auth.ErrMissingToken, http.StatusUnauthorized, "missing token").
		WithMapping(auth.ErrInvalidToken, http.StatusUnauthorized, "invalid token").
		WithMapping(resinfra.ErrMissingToken, http.StatusUnauthorized, "missing token").
		WithMatcher(upstreamForbidden, http.StatusForbidden, "forbidden").
		WithMatcher(kindIs(gateway.KindAuth), http.StatusUnauthorized, "re-authentication required").
		WithMapping(gateway.ErrNotFound, http.StatusNotFound, "resource not found").
		WithMapping(resinfra.ErrMissingParam, http.StatusBadRequest, "missing parameter").
		WithMapping(selection.ErrUnknownScope, http.StatusBadRequest, "unknown selection scope").
		WithMapping(domain.ErrUnknownView, http.StatusBadRequest, "unknown view").
		WithMapping(domain.ErrNotPaged, http.StatusBadRequest, "view is not paged").
		WithMapping(usecase.ErrSessionClosed, http.StatusConflict, "session closed").
		WithMatcher(upstreamStatus(func(s int) bool { return s >= 500 }), http.StatusBadGateway, "upstream error").
		WithMatcher(upstreamStatus(func(s int) bool { return s == http.StatusConflict }), http.StatusConflict, "upstream conflict").
		WithMatcher(upstreamStatus(func(s int) bool { return s >= 400 }), http.StatusUnprocessableEntity, "upstream rejected request").
		WithMatcher(upstreamTimeout, http.StatusGatewayTimeout, "upstream timeout").
		WithMatcher(kindIs(gateway.KindTransport), http.StatusBadGateway, "upstream unavailable").
		WithMatcher(kindIs(gateway.KindDecode), http.StatusBadGateway, "invalid upstream response")
}
