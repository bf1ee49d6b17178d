package ledger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string, attempts int) *HTTPClient {
	return NewHTTPClient(HTTPConfig{
		BaseURL:        baseURL,
		RequestTimeout: time.Second,
		PollInterval:   time.Millisecond,
		PollAttempts:   attempts,
	})
}

func TestAnchorConfirmedAfterPolling(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/anchors":
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"receipt_id":"r-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/receipts/r-1":
			if atomic.AddInt32(&polls, 1) < 3 {
				w.Write([]byte(`{"status":"pending"}`))
				return
			}
			w.Write([]byte(`{"status":"confirmed","reference":"tx123"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ref, err := newTestClient(srv.URL, 10).Anchor(context.Background(), uuid.New(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "tx123", ref)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(3))
}

func TestAnchorSubmissionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).Anchor(context.Background(), uuid.New(), "abc")
	assert.ErrorIs(t, err, ErrAnchorSubmission)
}

func TestAnchorSubmissionErrorWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	_, err := newTestClient(srv.URL, 3).Anchor(context.Background(), uuid.New(), "abc")
	assert.ErrorIs(t, err, ErrAnchorSubmission)
}

func TestAnchorFailedReceiptStopsPolling(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"receipt_id":"r-f"}`))
			return
		}
		atomic.AddInt32(&polls, 1)
		w.Write([]byte(`{"status":"failed"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 6).Anchor(context.Background(), uuid.New(), "abc")
	assert.ErrorIs(t, err, ErrAnchorSubmission)
	assert.False(t, errors.Is(err, ErrAnchorTimeout))
	// A rejected receipt is a known outcome; no further polls.
	assert.Equal(t, int32(1), atomic.LoadInt32(&polls))
}

func TestAnchorTimeoutAfterBudget(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"receipt_id":"r-2"}`))
			return
		}
		atomic.AddInt32(&polls, 1)
		w.Write([]byte(`{"status":"pending"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 4).Anchor(context.Background(), uuid.New(), "abc")
	assert.ErrorIs(t, err, ErrAnchorTimeout)
	// The retry budget is fixed, not unbounded.
	assert.Equal(t, int32(4), atomic.LoadInt32(&polls))
}

func TestLatest(t *testing.T) {
	id := uuid.New()

	t.Run("returns anchored digest", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/anchors/"+id.String()+"/latest", r.URL.Path)
			w.Write([]byte(`{"digest":"abc123","exists":true}`))
		}))
		defer srv.Close()

		digest, err := newTestClient(srv.URL, 1).Latest(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "abc123", digest)
	})

	t.Run("not anchored is a distinct negative result", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"digest":"","exists":false}`))
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL, 1).Latest(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotAnchored)
		assert.False(t, errors.Is(err, ErrLedgerUnavailable))
	})

	t.Run("404 maps to not anchored", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL, 1).Latest(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotAnchored)
	})

	t.Run("transport failure maps to unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL, 1).Latest(context.Background(), id)
		assert.ErrorIs(t, err, ErrLedgerUnavailable)
	})
}
