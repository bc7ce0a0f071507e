/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/valyx/valog/pkg/codec"
	"github.com/valyx/valog/pkg/config"
	"github.com/valyx/valog/pkg/vlog"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the log over HTTP",
	Long: `Serve the log over HTTP for inspection and remote appends. The
endpoints mirror the embedded API: positions in and out, values as raw
bytes.

Example:
  valog serve --data-dir ./data --port 8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := engineFromContext(cmd)
		if err != nil {
			return err
		}
		cfg, ok := cmd.Context().Value(configKey).(*config.Config)
		if !ok {
			return fmt.Errorf("config not found in context")
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Port = port
		}

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Handle("/metrics", promhttp.Handler())
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, engine.Stats())
			})
			r.Get("/records/{logID}/{offset}", handleGetRecord(engine))
			r.Post("/records", handlePostRecord(engine))
			r.Delete("/records/{key}", handleDeleteRecord(engine))
		})

		addr := fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port)
		cmd.Printf("Serving value log on http://%s\n", addr)
		return http.ListenAndServe(addr, r)
	},
}

func handleGetRecord(engine *vlog.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logID, err1 := strconv.ParseUint(chi.URLParam(r, "logID"), 10, 64)
		offset, err2 := strconv.ParseUint(chi.URLParam(r, "offset"), 10, 64)
		if err1 != nil || err2 != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad position"})
			return
		}

		value, err := engine.Get(codec.Position{LogID: logID, Offset: offset})
		if err != nil {
			writeEngineError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(value)
	}
}

func handlePostRecord(engine *vlog.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		if key == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "key query parameter is required"})
			return
		}
		value, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		pos, err := engine.Put([]byte(key), value)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if err := engine.Sync(); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]uint64{
			"log_id": pos.LogID,
			"offset": pos.Offset,
		})
	}
}

func handleDeleteRecord(engine *vlog.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, err := engine.Remove([]byte(chi.URLParam(r, "key")))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if err := engine.Sync(); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]uint64{
			"log_id": pos.LogID,
			"offset": pos.Offset,
		})
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, vlog.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, vlog.ErrCorrupt):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, vlog.ErrKeyEmpty):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
