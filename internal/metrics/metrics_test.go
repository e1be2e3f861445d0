package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorHandler(t *testing.T) {
	c := NewCollector("feedhandler")
	c.CapturesReceived.Inc()
	c.WriteErrors.WithLabelValues("archive").Inc()

	if got := testutil.ToFloat64(c.CapturesReceived); got != 1 {
		t.Errorf("CapturesReceived = %v, expected 1", got)
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`rtmonitor_captures_received_total{module="feedhandler"} 1`,
		`rtmonitor_write_errors_total{module="feedhandler",target="archive"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestWrapPublisher(t *testing.T) {
	if WrapPublisher(nil) != nil {
		t.Error("WrapPublisher(nil) should be a nil interface")
	}
	c := NewCollector("feedhandler")
	p := WrapPublisher(c)
	p.PublishedInc()
	p.PublishedInc()
	p.PublishErrInc()
	p.SetConnected(true)

	if got := testutil.ToFloat64(c.BusPublished); got != 2 {
		t.Errorf("BusPublished = %v, expected 2", got)
	}
	if got := testutil.ToFloat64(c.BusPublishErrs); got != 1 {
		t.Errorf("BusPublishErrs = %v, expected 1", got)
	}
	if got := testutil.ToFloat64(c.BusConnected); got != 1 {
		t.Errorf("BusConnected = %v, expected 1", got)
	}
	p.SetConnected(false)
	if got := testutil.ToFloat64(c.BusConnected); got != 0 {
		t.Errorf("BusConnected = %v, expected 0", got)
	}
}
