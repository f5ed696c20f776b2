package suppression

import (
	"context"
	"errors"
	"testing"

	"github.com/mailgun/mailgun-go/v4"
)

type fakeBounceAdder struct {
	addBounceFn func(ctx context.Context, address, code, error string) error
}

func (f *fakeBounceAdder) AddBounce(ctx context.Context, address, code, error string) error {
	return f.addBounceFn(ctx, address, code, error)
}

func TestMailgunSinkSuppress(t *testing.T) {
	t.Parallel()

	var gotAddress, gotCode string
	sink, err := NewMailgunSinkWithClient(&fakeBounceAdder{
		addBounceFn: func(_ context.Context, address, code, _ string) error {
			gotAddress, gotCode = address, code
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewMailgunSinkWithClient() error = %v", err)
	}

	if err := sink.Suppress(context.Background(), "gone@example.com"); err != nil {
		t.Fatalf("Suppress() error = %v", err)
	}
	if gotAddress != "gone@example.com" || gotCode != bounceCode {
		t.Fatalf("AddBounce(%q, %q), want (%q, %q)", gotAddress, gotCode, "gone@example.com", bounceCode)
	}
}

func TestMailgunSinkErrorClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		err           error
		wantTransient bool
		wantStatus    int
	}{
		{name: "server error", err: &mailgun.UnexpectedResponseError{Actual: 503}, wantTransient: true, wantStatus: 503},
		{name: "unauthorized", err: &mailgun.UnexpectedResponseError{Actual: 401}, wantTransient: false, wantStatus: 401},
		{name: "transport failure", err: errors.New("connection reset"), wantTransient: true},
		{name: "canceled", err: context.Canceled, wantTransient: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sink, err := NewMailgunSinkWithClient(&fakeBounceAdder{
				addBounceFn: func(context.Context, string, string, string) error { return tc.err },
			})
			if err != nil {
				t.Fatalf("NewMailgunSinkWithClient() error = %v", err)
			}

			err = sink.Suppress(context.Background(), "gone@example.com")
			if !errors.Is(err, tc.err) {
				t.Fatalf("Suppress() error = %v, want wrapping %v", err, tc.err)
			}
			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}

			var sinkErr *SinkError
			if !errors.As(err, &sinkErr) {
				t.Fatalf("expected SinkError, got %T", err)
			}
			if sinkErr.StatusCode != tc.wantStatus {
				t.Fatalf("StatusCode = %d, want %d", sinkErr.StatusCode, tc.wantStatus)
			}
		})
	}
}

func TestNewMailgunSinkValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewMailgunSink("", "key"); err == nil {
		t.Fatal("NewMailgunSink() error = nil, want error for missing domain")
	}
	if _, err := NewMailgunSinkWithClient(nil); err == nil {
		t.Fatal("NewMailgunSinkWithClient() error = nil, want error for nil client")
	}
	if _, err := NewMailgunSink("mg.example.com", "key-123"); err != nil {
		t.Fatalf("NewMailgunSink() error = %v", err)
	}
}
