// Package internal hosts operational plumbing that is not part of the
// relay's public surface: the debug HTTP server with health, metrics and
// storage inspection endpoints.
package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"dm-relay/contract"
	"dm-relay/domain"
	"dm-relay/observability"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsProvider supplies engine numbers for the health payload.
type StatsProvider func() map[string]any

type healthPayload struct {
	Status string                  `json:"status"`
	Uptime string                  `json:"uptime"`
	Self   observability.SelfStats `json:"self"`
	Engine map[string]any          `json:"engine,omitempty"`
}

type historyPayload struct {
	Messages   []domain.Message `json:"messages"`
	NextCursor *string          `json:"nextCursor,omitempty"`
}

// StartDebugServer exposes /healthz, /metrics, /keys and /history on its
// own listener, decoupled from the websocket port. It never blocks the
// caller.
func StartDebugServer(log *slog.Logger, db *badger.DB,
	messages contract.IMessageRepository, port int, stats StatsProvider) {
	mux := DebugMux(log, db, messages, stats)
	go func() {
		addr := fmt.Sprintf(":%d", port)
		log.Info("Debug server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Warn("Debug server stopped", "error", err)
		}
	}()
}

// DebugMux builds the debug endpoints.
func DebugMux(log *slog.Logger, db *badger.DB,
	messages contract.IMessageRepository, stats StatsProvider) *http.ServeMux {
	started := time.Now()
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		self, err := observability.CollectSelfStats()
		if err != nil {
			log.Debug("Self stats unavailable", "error", err)
		}
		payload := healthPayload{
			Status: "ok",
			Uptime: time.Since(started).Round(time.Second).String(),
			Self:   self,
		}
		if stats != nil {
			payload.Engine = stats()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	})

	mux.Handle("/metrics", promhttp.Handler())

	// Key listing for storage triage, e.g. /keys?prefix=conv:
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		prefix := []byte(r.URL.Query().Get("prefix"))
		err := db.View(func(txn *badger.Txn) error {
			options := badger.DefaultIteratorOptions
			options.PrefetchValues = false
			it := txn.NewIterator(options)
			defer it.Close()
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				fmt.Fprintln(w, string(it.Item().Key()))
			}
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	// Paginated message history for a conversation, newest first,
	// e.g. /history?conversation=conv-1&cursor=<nextCursor>
	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		conversation := r.URL.Query().Get("conversation")
		if conversation == "" {
			http.Error(w, "conversation is required", http.StatusBadRequest)
			return
		}
		var cursor *string
		if c := r.URL.Query().Get("cursor"); c != "" {
			cursor = &c
		}
		page, next, err := messages.GetMessages(conversation, cursor)
		if err != nil {
			log.Warn("History read failed", "conversation", conversation, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(historyPayload{Messages: page, NextCursor: next})
	})

	return mux
}
