package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.ObserveSubmission("bsc_testnet", "confirmed", 2*time.Second)
	r.ObserveSubmission("bsc_testnet", "confirmed", time.Second)
	r.ObserveSubmission("bsc_testnet", "timeout", 0)
	r.ObserveCall("swapBNBForTokenSupportingFee", "send")

	if got := testutil.ToFloat64(r.transactions.WithLabelValues("bsc_testnet", "confirmed")); got != 2 {
		t.Fatalf("expected 2 confirmed, got %v", got)
	}
	if got := testutil.ToFloat64(r.transactions.WithLabelValues("bsc_testnet", "timeout")); got != 1 {
		t.Fatalf("expected 1 timeout, got %v", got)
	}
	if got := testutil.ToFloat64(r.calls.WithLabelValues("swapBNBForTokenSupportingFee", "send")); got != 1 {
		t.Fatalf("expected 1 send, got %v", got)
	}
	if got := testutil.CollectAndCount(r.latency); got != 1 {
		t.Fatalf("expected one latency series, got %d", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.ObserveSubmission("bsc_mainnet", "reverted", 500*time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`inkaswap_transactions_total{network="bsc_mainnet",outcome="reverted"} 1`,
		`inkaswap_submit_duration_seconds_count{network="bsc_mainnet"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("scrape output missing %q", want)
		}
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	t.Parallel()
	var r *Recorder
	r.ObserveSubmission("bsc_testnet", "confirmed", time.Second)
	r.ObserveCall("owner", "call")
}

func TestStartServerValidation(t *testing.T) {
	t.Parallel()
	if err := StartServer(context.Background(), "", NewRecorder()); err == nil {
		t.Fatal("expected error for empty address")
	}
	if err := StartServer(context.Background(), ":0", nil); err == nil {
		t.Fatal("expected error for nil recorder")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := StartServer(ctx, "127.0.0.1:0", NewRecorder()); err == nil {
		t.Fatal("expected context error after cancel")
	}
}
