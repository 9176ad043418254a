package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowstudies/csas-stations/services/uploader/internal/reconcile"
)

func TestOutcomeCounters(t *testing.T) {
	m := New()
	m.Outcome(reconcile.Result{Station: "SASP", Outcome: reconcile.Uploaded, Rows: 7})
	m.Outcome(reconcile.Result{Station: "SASP", Outcome: reconcile.UploadedWithGap, Rows: 3, Gaps: []reconcile.Gap{{ArrayID: 1}}})
	m.Outcome(reconcile.Result{Station: "SASP", Outcome: reconcile.Uploaded, Rows: 100, DryRun: true})
	m.Outcome(reconcile.Result{Station: "PTSP", Outcome: reconcile.Failed, Err: errors.New("down")})
	m.Retry("PTSP", 1, errors.New("down"))
	m.PassCompleted("p", time.Now().Add(-time.Second), nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.uploadsTotal.WithLabelValues("SASP", "uploaded")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.rowsWritten.WithLabelValues("SASP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gapsTotal.WithLabelValues("SASP", "1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploadsTotal.WithLabelValues("PTSP", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dbRetriesTotal.WithLabelValues("PTSP")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.Outcome(reconcile.Result{Station: "SBSP", Outcome: reconcile.NoNewRows})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `csas_uploads_total{outcome="no_new_rows",station="SBSP"} 1`)
}
