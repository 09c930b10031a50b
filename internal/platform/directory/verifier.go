// Package directory checks that patients, doctors and centers referenced by a
// booking exist in the external directory service.
package directory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ehr/appointments/internal/platform/metrics"
)

// Kind is a directory entity type.
type Kind string

const (
	KindPatient Kind = "patient"
	KindDoctor  Kind = "doctor"
	KindCenter  Kind = "center"
)

// paths are the directory service's read endpoints per kind.
var paths = map[Kind]string{
	KindPatient: "/admin/pacients/",
	KindDoctor:  "/admin/doctors/",
	KindCenter:  "/admin/centres/",
}

// Status is the outcome of an existence check.
type Status int

const (
	Exists Status = iota
	NotFound
	Unreachable
)

func (s Status) String() string {
	switch s {
	case Exists:
		return "exists"
	case NotFound:
		return "not_found"
	default:
		return "unreachable"
	}
}

// EntityVerifier confirms that a referenced entity exists. A non-nil error is
// returned only together with Unreachable and carries the transport cause.
type EntityVerifier interface {
	Verify(ctx context.Context, kind Kind, id int64, credential string) (Status, error)
}

// HTTPVerifier performs lookups against the directory service over HTTP.
type HTTPVerifier struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewHTTPVerifier returns a verifier for the directory service at baseURL.
// Every lookup is bounded by timeout.
func NewHTTPVerifier(baseURL string, timeout time.Duration, m *metrics.Metrics, logger zerolog.Logger) *HTTPVerifier {
	return &HTTPVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout: timeout,
		metrics: m,
		logger:  logger.With().Str("component", "directory").Logger(),
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, kind Kind, id int64, credential string) (Status, error) {
	ctx, span := otel.Tracer("appointments/directory").Start(ctx, "directory.verify")
	defer span.End()
	span.SetAttributes(attribute.String("entity.kind", string(kind)), attribute.Int64("entity.id", id))

	start := time.Now()
	status, err := v.lookup(ctx, kind, id, credential)
	v.metrics.ObserveVerification(string(kind), status.String(), time.Since(start))

	span.SetAttributes(attribute.String("verify.status", status.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "directory unreachable")
		v.logger.Warn().Err(err).Str("kind", string(kind)).Int64("id", id).Msg("directory lookup failed")
	}
	return status, err
}

func (v *HTTPVerifier) lookup(ctx context.Context, kind Kind, id int64, credential string) (Status, error) {
	path, ok := paths[kind]
	if !ok {
		return Unreachable, fmt.Errorf("unknown entity kind %q", kind)
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	url := v.baseURL + path + strconv.FormatInt(id, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Unreachable, fmt.Errorf("build directory request: %w", err)
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return Unreachable, fmt.Errorf("directory %s lookup: %w", kind, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Exists, nil
	}
	return NotFound, nil
}
