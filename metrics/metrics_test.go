package metrics_test

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/steve-o/openpgm-sub004/metrics"
)

// TestPrometheusMetricsServed exercises the registered collectors exactly
// the way the socket core does in production: increment a representative
// sample of each metric, serve the default registry over HTTP, and confirm
// every name shows up in the scrape.
func TestPrometheusMetricsServed(t *testing.T) {
	metrics.OdataReceivedTotal.WithLabelValues("peer-a").Inc()
	metrics.BytesReceivedTotal.WithLabelValues("peer-a").Add(128)
	metrics.NaksSentTotal.WithLabelValues("peer-a").Inc()
	metrics.NaksFailedRxwAdvancedTotal.Inc()
	metrics.PacketErrorsTotal.WithLabelValues("checksum").Inc()
	metrics.OdataSentTotal.Inc()
	metrics.SpmsSentTotal.Inc()
	metrics.NaksReceivedTotal.Inc()
	metrics.RateLimitTakesGrantedTotal.Inc()
	metrics.DispatchIntervalHistogram.Observe(0.01)

	server := httptest.NewServer(promhttp.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading metrics body: %v", err)
	}
	scrape := string(body)

	for _, name := range []string{
		"pgm_odata_received_total",
		"pgm_bytes_received_total",
		"pgm_naks_sent_total",
		"pgm_naks_failed_rxw_advanced_total",
		"pgm_packet_errors_total",
		"pgm_odata_sent_total",
		"pgm_spms_sent_total",
		"pgm_naks_received_total",
		"pgm_ratelimit_takes_granted_total",
		"pgm_dispatch_interval_histogram",
	} {
		if !strings.Contains(scrape, name) {
			t.Errorf("scrape missing metric %q", name)
		}
	}
}
