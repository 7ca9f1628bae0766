package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type fakeScanEnqueuer struct {
	calls int
	err   error
}

func (f *fakeScanEnqueuer) EnqueueStockIntegrityScan(ctx context.Context) error {
	f.calls++
	return f.err
}

func newScanRouter(scans ScanEnqueuer) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, NewService(newMemoryRepo(), nil, nil), nil, scans)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestScanEnqueueAccepted(t *testing.T) {
	scans := &fakeScanEnqueuer{}
	router := newScanRouter(scans)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/inventory/integrity-scan", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, scans.calls)
	require.Contains(t, rec.Body.String(), `"enqueued":true`)
}

func TestScanEnqueueQueueDown(t *testing.T) {
	scans := &fakeScanEnqueuer{err: errors.New("redis unreachable")}
	router := newScanRouter(scans)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/inventory/integrity-scan", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, 1, scans.calls)
}

func TestScanEnqueueNotConfigured(t *testing.T) {
	router := newScanRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/inventory/integrity-scan", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
