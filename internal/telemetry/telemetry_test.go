// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/aidchat/internal/exchange"
)

func TestRecorder_Summary(t *testing.T) {
	r := NewRecorder()

	r.SubmissionDropped(exchange.DropBusy)
	r.ExchangeStarted()
	r.FragmentApplied()
	r.FragmentApplied()
	r.ExchangeFinished(exchange.OutcomeCompleted, 2*time.Second)
	r.ExchangeStarted()
	r.ExchangeFinished(exchange.OutcomeFailed, 4*time.Second)
	r.SessionOpenFailed()

	s := r.Summary()
	if s.Exchanges != 2 || s.Completed != 1 || s.Failed != 1 || s.Dropped != 1 || s.Fragments != 2 || s.OpenFailures != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.AverageDuration() != 3*time.Second {
		t.Errorf("AverageDuration() = %v", s.AverageDuration())
	}
	if !strings.Contains(s.String(), "2 exchanges") {
		t.Errorf("String() = %q", s.String())
	}
}

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	srv := httptest.NewServer(Handler(r))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestRecorder_Prometheus(t *testing.T) {
	r := NewRecorder()
	r.ExchangeStarted()
	r.ExchangeFinished(exchange.OutcomeCompleted, time.Second)
	r.SubmissionDropped(exchange.DropRateLimited)
	r.SubmissionDropped(exchange.DropRateLimited)

	out := scrape(t, r)
	for _, want := range []string{
		`aidchat_exchanges_total{outcome="completed"} 1`,
		`aidchat_submissions_dropped_total{reason="rate_limited"} 2`,
		`aidchat_exchanges_in_flight 0`,
		`aidchat_exchange_duration_seconds_count 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestHandler(t *testing.T) {
	r := NewRecorder()
	r.FragmentApplied()

	if out := scrape(t, r); !strings.Contains(out, "aidchat_fragments_total 1") {
		t.Errorf("metrics output missing counter:\n%s", out)
	}

	srv := httptest.NewServer(Handler(r))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
}
