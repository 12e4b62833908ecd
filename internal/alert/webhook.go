package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"tradesim/pkg/telemetry"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DeliveryError is a non-2xx answer from a chat endpoint.
type DeliveryError struct {
	Channel    string
	StatusCode int
	Body       []byte
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: status=%d body=%s", e.Channel, e.StatusCode, string(e.Body))
}

// reply is one attempt's outcome; the body is drained before the retry
// policy looks at it.
type reply struct {
	status int
	body   []byte
}

// poster sends JSON documents to chat endpoints, retrying transport errors,
// 5xx and 429 answers with backoff.
type poster struct {
	channel string
	client  *http.Client
	retry   retrypolicy.RetryPolicy[reply]
	tracer  trace.Tracer
}

func newPoster(channel string, timeout time.Duration) *poster {
	return &poster{
		channel: channel,
		client:  &http.Client{Timeout: timeout},
		retry:   newRetryPolicy(2, 250*time.Millisecond),
		tracer:  telemetry.GetTracer("alert"),
	}
}

func newRetryPolicy(maxRetries int, delay time.Duration) retrypolicy.RetryPolicy[reply] {
	return retrypolicy.NewBuilder[reply]().
		HandleIf(func(r reply, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return r.status >= 500 || r.status == http.StatusTooManyRequests
		}).
		WithBackoff(delay, 8*delay).
		WithMaxRetries(maxRetries).
		Build()
}

func (p *poster) postJSON(ctx context.Context, url string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", p.channel, err)
	}

	ctx, span := p.tracer.Start(ctx, "alert."+p.channel,
		trace.WithAttributes(attribute.String("alert.channel", p.channel)))
	defer span.End()

	attempts := 0
	r, err := failsafe.With[reply](p.retry).WithContext(ctx).Get(func() (reply, error) {
		attempts++
		return p.attempt(ctx, url, payload)
	})
	span.SetAttributes(attribute.Int("alert.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		return fmt.Errorf("%s: %w", p.channel, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", r.status))
	if r.status < 200 || r.status >= 300 {
		derr := &DeliveryError{Channel: p.channel, StatusCode: r.status, Body: r.body}
		span.SetStatus(codes.Error, derr.Error())
		return derr
	}
	return nil
}

func (p *poster) attempt(ctx context.Context, url string, payload []byte) (reply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return reply{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return reply{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return reply{}, fmt.Errorf("failed to read response: %w", err)
	}
	return reply{status: resp.StatusCode, body: body}, nil
}
