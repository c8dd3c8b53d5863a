package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mchmarny/asdscreen/pkg/data"
	"github.com/mchmarny/asdscreen/pkg/net"
	"github.com/mchmarny/asdscreen/pkg/scoring"
)

const (
	auditTimeoutSeconds = 5
	multipartMemory     = 8 << 20

	msgMissingFile     = "No file uploaded. Send the spreadsheet in the 'file' form field."
	msgFileTooLarge    = "File too large. Maximum upload size is %d MB."
	msgNoAuditStore    = "audit store not configured"
	msgHistoryFailed   = "failed to read audit history"
	msgInternalFailure = "internal server error"
	msgUnauthorized    = "unauthorized"
)

type historyResponse struct {
	Summary *data.Summary `json:"summary" yaml:"summary"`
	Events  []*data.Event `json:"events" yaml:"events"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryParamInt(r *http.Request, name string, defaultVal int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func healthAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// classify maps a Score error to its strict HTTP status and audit status.
func classify(err error) (int, string) {
	var mce *scoring.MissingColumnsError
	switch {
	case errors.Is(err, scoring.ErrInvalidFormat):
		return http.StatusUnsupportedMediaType, data.StatusInvalidFormat
	case errors.As(err, &mce):
		return http.StatusUnprocessableEntity, data.StatusMissingColumns
	default:
		return http.StatusInternalServerError, data.StatusFailed
	}
}

func predictAPIHandler(opts *routerOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := slog.With("request_id", requestID(r.Context()))

		r.Body = http.MaxBytesReader(w, r.Body, opts.maxUploadBytes)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				log.Warn("upload too large", "limit", mbe.Limit)
				writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf(msgFileTooLarge, mbe.Limit>>20))
				return
			}
			log.Warn("invalid upload", "error", err)
			writeError(w, http.StatusUnprocessableEntity, msgMissingFile)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile(net.FileField)
		if err != nil {
			log.Warn("missing upload", "error", err)
			writeError(w, http.StatusUnprocessableEntity, msgMissingFile)
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			log.Error("failed to read upload", "file", header.Filename, "error", err)
			writeError(w, http.StatusUnprocessableEntity, msgMissingFile)
			return
		}

		ev := &data.Event{Filename: header.Filename}
		res, err := opts.scorer.Score(header.Filename, content)
		if err != nil {
			status, evStatus := classify(err)
			msg := scoring.Message(err)
			ev.Status, ev.Message = evStatus, msg

			var pe *scoring.ProcessingError
			if errors.As(err, &pe) {
				log.Error("error processing file", "file", header.Filename, "error", err, "trace", pe.Trace())
			} else {
				log.Warn("rejected file", "file", header.Filename, "error", err)
			}

			if !opts.strictStatus {
				status = http.StatusOK
			}
			writeError(w, status, msg)
		} else {
			ev.Status = data.StatusOK
			ev.Rows = len(res.Rows)
			ev.HighRisk = res.HighRiskCount()
			log.Info("processed file", "file", header.Filename, "rows", ev.Rows)
			writeJSON(w, http.StatusOK, res)
		}

		ev.DurationMS = time.Since(start).Milliseconds()
		audit(r.Context(), opts.store, ev)
	}
}

// audit records ev when a store is configured. Failures are logged only.
func audit(ctx context.Context, store *data.Store, ev *data.Event) {
	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeoutSeconds*time.Second)
	defer cancel()

	if err := store.SaveEvent(ctx, ev); err != nil {
		slog.Warn("failed to save audit event", "file", ev.Filename, "error", err)
	}
}

func historyAPIHandler(store *data.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, http.StatusNotFound, msgNoAuditStore)
			return
		}

		limit := queryParamInt(r, "limit", data.DefaultListLimit)
		events, err := store.ListEvents(r.Context(), limit)
		if err != nil {
			slog.Error("failed to list audit events", "error", err)
			writeError(w, http.StatusInternalServerError, msgHistoryFailed)
			return
		}

		sum, err := store.Summary(r.Context())
		if err != nil {
			slog.Error("failed to summarize audit events", "error", err)
			writeError(w, http.StatusInternalServerError, msgHistoryFailed)
			return
		}

		writeJSON(w, http.StatusOK, &historyResponse{Summary: sum, Events: events})
	}
}
