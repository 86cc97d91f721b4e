package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"compliance-rag-assistant/models"

	"github.com/googleapis/gax-go/v2/apierror"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
)

// backend describes which side of the pipeline a failure belongs to.
type backend struct {
	provider string
	model    string
	keyEnv   string
	modelEnv string
	embed    bool
}

func (b backend) unavailable(err error) error {
	if b.embed {
		return &models.ProviderUnavailableError{Provider: b.provider, Err: err}
	}
	return &models.ModelUnavailableError{Model: b.model, Err: err}
}

// classify maps a raw SDK error onto the error taxonomy.
func (b backend) classify(err error) error {
	if err == nil {
		return nil
	}
	if models.IsTransient(err) || errors.Is(err, models.ErrConfiguration) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return b.unavailable(err)
	}

	if code, retryAfter, ok := statusOf(err); ok {
		return b.fromStatus(code, retryAfter, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return b.unavailable(err)
	}
	return fmt.Errorf("%s %s: %w", b.provider, b.model, err)
}

func (b backend) fromStatus(code int, retryAfter time.Duration, err error) error {
	switch {
	case code == http.StatusTooManyRequests:
		return &models.RateLimitedError{Provider: b.provider, RetryAfter: retryAfter, Err: err}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &models.ConfigurationError{Key: b.keyEnv, Reason: "was rejected by " + b.provider + ": " + err.Error()}
	case code == http.StatusNotFound:
		return &models.ConfigurationError{Key: b.modelEnv, Reason: fmt.Sprintf("model %q not found at %s", b.model, b.provider)}
	case code == http.StatusRequestTimeout || code >= 500:
		return b.unavailable(err)
	default:
		return fmt.Errorf("%s %s: %w", b.provider, b.model, err)
	}
}

// statusOf extracts an HTTP status and retry hint from Google and OpenAI
// SDK errors.
func statusOf(err error) (int, time.Duration, bool) {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		var retryAfter time.Duration
		if ri := apiErr.Details().RetryInfo; ri != nil && ri.GetRetryDelay() != nil {
			retryAfter = ri.GetRetryDelay().AsDuration()
		}
		if code := apiErr.HTTPCode(); code > 0 {
			return code, retryAfter, true
		}
		if st := apiErr.GRPCStatus(); st != nil {
			return grpcToHTTP(st.Code()), retryAfter, true
		}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code, parseRetryAfter(gErr.Header.Get("Retry-After")), true
	}

	var oaErr *openai.APIError
	if errors.As(err, &oaErr) {
		return oaErr.HTTPStatusCode, 0, oaErr.HTTPStatusCode > 0
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, 0, reqErr.HTTPStatusCode > 0
	}
	return 0, 0, false
}

func grpcToHTTP(c codes.Code) int {
	switch c {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.DeadlineExceeded:
		return http.StatusRequestTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Internal, codes.Unknown:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
