package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appconfig "github.com/wolfman30/praxis-booking/internal/config"
)

func TestSetupMetricsExposesBookingMetrics(t *testing.T) {
	handler, bookingMetrics := setupMetrics()
	if handler == nil || bookingMetrics == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	bookingMetrics.ObserveTransition("select_location", "ok", 0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "praxis_booking_transitions_total") {
		t.Fatalf("expected transitions counter to be exported")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected runtime collectors to be exported")
	}
}

func TestRateLimiterDisabledWithoutRate(t *testing.T) {
	if rateLimiter(&appconfig.Config{RateLimitRPS: 0}) != nil {
		t.Fatalf("expected no limiter when rate is zero")
	}
	if rateLimiter(&appconfig.Config{RateLimitRPS: 2, RateLimitBurst: 4}) == nil {
		t.Fatalf("expected limiter when rate is set")
	}
}
