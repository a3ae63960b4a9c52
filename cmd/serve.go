package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/decision-engine/internal/calibrate"
	"github.com/sells-group/decision-engine/internal/model"
	"github.com/sells-group/decision-engine/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/decide", func(w http.ResponseWriter, req *http.Request) {
		var txn model.Transaction
		if err := json.NewDecoder(req.Body).Decode(&txn); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		d, err := env.Engine.Evaluate(req.Context(), &txn)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, d)
	})

	r.Post("/observe", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Vendor     string  `json:"vendor"`
			Account    string  `json:"account"`
			Confidence float64 `json:"confidence"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := env.Engine.ObserveApproval(req.Context(), body.Vendor, body.Account, body.Confidence); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
	})

	r.Get("/decisions/{txn}/explain", func(w http.ResponseWriter, req *http.Request) {
		trace, err := env.Explainer.Explain(req.Context(), chi.URLParam(req, "txn"))
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "decision not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, trace)
	})

	r.Get("/candidates", func(w http.ResponseWriter, req *http.Request) {
		cands, err := env.Evidence.Candidates(req.Context(), model.CandidateStatus(req.URL.Query().Get("status")))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, cands)
	})

	r.Post("/candidates/{id}/reject", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Reason string `json:"reason"`
			Author string `json:"author"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := env.Rules.Reject(req.Context(), chi.URLParam(req, "id"), body.Reason, body.Author); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
	})

	r.Post("/dryrun", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			CandidateIDs []string `json:"candidate_ids"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		report, err := env.Rules.DryRun(req.Context(), body.CandidateIDs)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	r.Post("/promote", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			CandidateIDs []string `json:"candidate_ids"`
			Author       string   `json:"author"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		v, err := env.Rules.Promote(req.Context(), body.CandidateIDs, body.Author)
		if err != nil {
			if eris.Is(err, store.ErrStaleVersion) {
				writeError(w, http.StatusConflict, "rule version changed underneath you, re-read and retry")
				return
			}
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, v)
	})

	r.Post("/rollback", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			TargetVersionID int64  `json:"target_version_id"`
			Author          string `json:"author"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		v, err := env.Rules.Rollback(req.Context(), body.TargetVersionID, body.Author)
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "target version not found")
				return
			}
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, v)
	})

	r.Get("/versions", func(w http.ResponseWriter, req *http.Request) {
		history, err := env.Rules.History(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, history)
	})

	r.Get("/versions/{from}/diff/{to}", func(w http.ResponseWriter, req *http.Request) {
		from, err1 := strconv.ParseInt(chi.URLParam(req, "from"), 10, 64)
		to, err2 := strconv.ParseInt(chi.URLParam(req, "to"), 10, 64)
		if err1 != nil || err2 != nil {
			writeError(w, http.StatusBadRequest, "version ids must be integers")
			return
		}
		diff, err := env.Rules.Diff(req.Context(), from, to)
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "version not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, diff)
	})

	r.Get("/drift", func(w http.ResponseWriter, req *http.Request) {
		snaps, err := env.Store.ListDriftSnapshots(req.Context(), 50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, snaps)
	})

	r.Post("/calibrate", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Samples        []calibrate.Sample `json:"samples"`
			ModelVersionID string             `json:"model_version_id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		m, err := env.Fitter.Refit(req.Context(), body.Samples, body.ModelVersionID)
		if err != nil {
			if eris.Is(err, calibrate.ErrFitFailure) {
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, m)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
