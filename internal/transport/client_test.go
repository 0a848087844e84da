package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func scriptedServer(t *testing.T, statuses []int, bodies []string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statuses[n])
		_, _ = w.Write([]byte(bodies[n]))
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func TestSendBacksOffOnRetryableFailures(t *testing.T) {
	ts, calls := scriptedServer(t,
		[]int{http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusOK},
		[]string{`{"error":"busy"}`, `{"error":"slow down"}`, `{"candidateImage":{"data":"AA=="}}`},
	)
	rec := &sleepRecorder{}
	client := NewClient(Options{Sleep: rec.sleep})

	resp, err := client.Send(context.Background(), &Request{Method: http.MethodPost, URL: ts.URL, Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, resp.Attempts)
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestSendStopsOnTerminalClassification(t *testing.T) {
	ts, calls := scriptedServer(t, []int{http.StatusUnauthorized}, []string{`{"error":"check your credentials"}`})
	rec := &sleepRecorder{}
	client := NewClient(Options{Sleep: rec.sleep})

	_, err := client.Send(context.Background(), &Request{URL: ts.URL, Body: []byte(`{}`)})
	require.Error(t, err)
	ce, ok := AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, ErrorTypeAuth, ce.Type)
	assert.Equal(t, "check your credentials", ce.Message)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
	assert.Empty(t, rec.delays)
}

func TestSendReturnsLastErrorAfterExhaustion(t *testing.T) {
	ts, calls := scriptedServer(t, []int{http.StatusBadGateway}, []string{`{"error":"upstream down"}`})
	rec := &sleepRecorder{}
	client := NewClient(Options{Sleep: rec.sleep})

	_, err := client.Send(context.Background(), &Request{URL: ts.URL})
	require.Error(t, err)
	assert.True(t, IsType(err, ErrorTypeServer))
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestSendRetriesNetworkFaults(t *testing.T) {
	var calls int
	httpClient := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return nil, errors.New("connection reset by peer")
	})}
	rec := &sleepRecorder{}
	client := NewClient(Options{HTTPClient: httpClient, Sleep: rec.sleep})

	_, err := client.Send(context.Background(), &Request{URL: "http://oracle.invalid/generate"})
	require.Error(t, err)
	ce, ok := AsClassified(err)
	require.True(t, ok)
	assert.True(t, ce.Network)
	assert.True(t, ce.Retryable())
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestSendClassifiesSafetyBlockAsTerminal(t *testing.T) {
	ts, calls := scriptedServer(t, []int{http.StatusBadRequest},
		[]string{`{"error":"request blocked","errorType":"safety_block"}`})
	client := NewClient(Options{Sleep: (&sleepRecorder{}).sleep})

	_, err := client.Send(context.Background(), &Request{URL: ts.URL})
	require.Error(t, err)
	assert.True(t, IsType(err, ErrorTypeSafetyBlock))
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestSendClassifiesEnvelopeOnSuccessStatus(t *testing.T) {
	ts, _ := scriptedServer(t, []int{http.StatusOK}, []string{`{"error":"image unreadable","errorType":"invalid_image"}`})
	client := NewClient(Options{Sleep: (&sleepRecorder{}).sleep})

	_, err := client.Send(context.Background(), &Request{URL: ts.URL})
	require.Error(t, err)
	assert.True(t, IsType(err, ErrorTypeInvalidImage))
	assert.Contains(t, err.Error(), "image unreadable")
}

func TestSendForwardsHeadersAndBody(t *testing.T) {
	var gotAuth, gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = string(buf)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	client := NewClient(Options{})
	header := http.Header{}
	header.Set("Authorization", "Bearer secret")
	_, err := client.Send(context.Background(), &Request{URL: ts.URL, Header: header, Body: []byte(`{"role":"PRIMARY"}`)})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, `{"role":"PRIMARY"}`, gotBody)
}

func TestRetryStopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, DefaultPolicy(), func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}, nil, func(ctx context.Context, attempt int) error {
		calls++
		return NewClassifiedError(ErrorTypeServer, http.StatusInternalServerError, "boom", nil)
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPolicyDelay(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
}
