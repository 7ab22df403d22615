package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/epitomedu/epi/internal/admission"
	"github.com/epitomedu/epi/internal/admission/models"
	dErrors "github.com/epitomedu/epi/pkg/domain-errors"
	"github.com/epitomedu/epi/pkg/platform/httputil"
	"github.com/epitomedu/epi/pkg/platform/middleware/admin"
	"github.com/epitomedu/epi/pkg/platform/middleware/cors"
	"github.com/epitomedu/epi/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

const (
	maxBodyBytes   = 1 << 20
	maxMemoryBytes = 1 << 20
)

// Service defines the admission operations the handler exposes.
type Service interface {
	Admit(ctx context.Context, sub models.Submission, sourceAddress string) (*models.Record, error)
	Status(ctx context.Context) admission.Status
	ExportRecords(ctx context.Context) ([]string, error)
	RetryAfter() time.Duration
}

// Handler serves the registration API.
type Handler struct {
	service     Service
	logger      *slog.Logger
	adminSecret string
	cors        cors.Config
}

// New creates a new admission Handler. An empty adminSecret leaves the export
// endpoint unprotected.
func New(service Service, logger *slog.Logger, adminSecret string) *Handler {
	return &Handler{
		service:     service,
		logger:      logger,
		adminSecret: adminSecret,
		cors:        cors.DefaultConfig(),
	}
}

// Register registers the registration routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		// Answers every OPTIONS preflight under /api before routing.
		r.Use(cors.Headers(h.cors))

		r.Get("/apply", h.handleStatus)
		r.Post("/apply", h.handleSubmit)

		r.With(admin.RequireAdminToken(h.adminSecret, h.logger)).Get("/log.txt", h.handleExport)
	})
}

type statusResponse struct {
	OK bool `json:"ok"`
	admission.Status
}

type submitResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, statusResponse{
		OK:     true,
		Status: h.service.Status(r.Context()),
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sub, err := decodeSubmission(w, r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid submission body",
			"request_id", requestID,
			"error", err.Error(),
		)
		var fieldErr *fieldTypeError
		if errors.As(err, &fieldErr) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, fieldErr.Error()))
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	record, err := h.service.Admit(ctx, sub, requestcontext.ClientIP(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeRateLimited) {
			w.Header().Set("Retry-After", strconv.Itoa(int(h.service.RetryAfter().Seconds())))
		}
		h.logger.InfoContext(ctx, "submission rejected",
			"request_id", requestID,
			"code", string(dErrors.CodeOf(err)),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, submitResponse{OK: true, ID: record.ID})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	lines, err := h.service.ExportRecords(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "record export failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	stamp := exportStamp(requestcontext.Now(ctx))
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.Header().Set("Content-Disposition", `attachment; filename="apply-log-`+stamp+`.txt"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, strings.Join(lines, "\n"))
}

// exportStamp renders an ISO-8601 UTC instant with ':' and '.' replaced by
// '-' so it is safe in file names: 2025-10-12T08-00-01-123Z.
func exportStamp(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s-%03dZ", t.Format("2006-01-02T15-04-05"), t.Nanosecond()/int(time.Millisecond))
}

// decodeSubmission reads a JSON or form-encoded body. Unknown fields are
// ignored and JSON scalars are taken as text.
func decodeSubmission(w http.ResponseWriter, r *http.Request) (models.Submission, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	var sub models.Submission
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return sub, err
		}
		return submissionFromForm(r.PostForm.Get), nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
			return sub, err
		}
		return submissionFromForm(r.PostFormValue), nil
	default:
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			if errors.Is(err, io.EOF) {
				return sub, errors.New("empty body")
			}
			return sub, err
		}
		var fieldErr error
		sub = submissionFromForm(func(field string) string {
			v, err := scalarText(body[field])
			if err != nil && fieldErr == nil {
				fieldErr = &fieldTypeError{field: field}
			}
			return v
		})
		return sub, fieldErr
	}
}

// fieldTypeError reports a JSON field holding an object or array.
type fieldTypeError struct {
	field string
}

func (e *fieldTypeError) Error() string {
	return e.field + " must be a string"
}

// scalarText renders a JSON scalar as submitted text. Numbers and booleans keep
// their literal form; null, false and zero count as absent, the same as an
// empty string.
func scalarText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		if !val {
			return "", nil
		}
		return "true", nil
	case float64:
		if val == 0 {
			return "", nil
		}
		return strings.TrimSpace(string(raw)), nil
	default:
		return "", errors.New("not a scalar")
	}
}

func submissionFromForm(get func(string) string) models.Submission {
	return models.Submission{
		Branch:      get("branch"),
		ChildBirth:  get("childBirth"),
		ChildName:   get("childName"),
		Gender:      get("gender"),
		ParentName:  get("parentName"),
		Relation:    get("relation"),
		ParentPhone: get("parentPhone"),
		AddrBase:    get("addrBase"),
		AddrDetail:  get("addrDetail"),
	}
}
