package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pauljones0/hotukdeals-notifier/internal/models"
	"github.com/pauljones0/hotukdeals-notifier/internal/processor"
)

type channelGetter interface {
	GetChannel(ctx context.Context, channelID string) (*models.Channel, error)
}

type testSender interface {
	SendTest(ctx context.Context, webhookURL string) error
}

type Server struct {
	// baseCtx parents runs started over HTTP; cancelling it stops them.
	baseCtx        context.Context
	processor      processor.Processor
	channels       channelGetter
	sender         testSender
	requestTimeout time.Duration

	// runMu serialises runs started by the schedule and by HTTP triggers.
	runMu sync.Mutex
	wg    sync.WaitGroup
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	for _, pattern := range []string{"GET /{$}", "POST /{$}", "GET /process-deals", "POST /process-deals"} {
		mux.HandleFunc(pattern, s.ProcessDealsHandler)
	}
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("POST /channels/{id}/test-notification", s.TestNotificationHandler)
	return mux
}

// startRun launches a run in the background unless one is already in
// progress.
func (s *Server) startRun(trigger string) bool {
	if !s.runMu.TryLock() {
		return false
	}
	ctx := s.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.runMu.Unlock()
		s.run(ctx, trigger)
	}()
	return true
}

// runScheduled is the cron job. It runs in the caller's goroutine so the
// scheduler sees how long the run takes.
func (s *Server) runScheduled(ctx context.Context) {
	if !s.runMu.TryLock() {
		slog.Info("Run already in progress, skipping scheduled run")
		return
	}
	defer s.runMu.Unlock()
	s.run(ctx, "schedule")
}

func (s *Server) run(ctx context.Context, trigger string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in ProcessDeals", "trigger", trigger, "panic", r)
		}
	}()

	report, err := s.processor.ProcessDeals(ctx)
	if err != nil {
		slog.Error("Error processing deals", "trigger", trigger, "failures", len(report.Failures), "error", err)
	}
}

// ProcessDealsHandler starts a run in the background so the response is not
// held open for the duration of scraping and delivery.
func (s *Server) ProcessDealsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.startRun("http") {
		http.Error(w, "deal processing already running", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "Deal processing started.")
}

// TestNotificationHandler sends a fixed test message to a channel's webhook.
func (s *Server) TestNotificationHandler(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("id")
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	channel, err := s.channels.GetChannel(ctx, channelID)
	if errors.Is(err, models.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "channel not found")
		return
	}
	if err != nil {
		slog.Error("Failed to load channel for test notification", "channel", channelID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load channel")
		return
	}

	if err := s.sender.SendTest(ctx, channel.WebhookURL); err != nil {
		slog.Warn("Test notification failed", "channel", channelID, "error", err)
		writeJSONError(w, http.StatusBadGateway, "webhook rejected the test notification")
		return
	}
	slog.Info("Sent test notification", "channel", channelID)
	w.WriteHeader(http.StatusNoContent)
}

// Wait blocks until background runs started over HTTP have returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
