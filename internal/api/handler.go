package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skillsenselab/whisper-server/internal/apierr"
	"github.com/skillsenselab/whisper-server/internal/logger"
	"github.com/skillsenselab/whisper-server/internal/metrics"
	"github.com/skillsenselab/whisper-server/internal/server"
	"github.com/skillsenselab/whisper-server/internal/transcribe"
)

// Handler serves the transcription API.
type Handler struct {
	svc       *transcribe.Service
	cfg       transcribe.Config
	metrics   *metrics.Core
	log       *logger.Logger
	name      string
	version   string
	startedAt time.Time
}

// NewHandler builds the API handler. core may be nil when metrics are
// disabled.
func NewHandler(svc *transcribe.Service, cfg transcribe.Config, core *metrics.Core, log *logger.Logger, name, version string) *Handler {
	return &Handler{
		svc:       svc,
		cfg:       cfg,
		metrics:   core,
		log:       log.WithComponent("api"),
		name:      name,
		version:   version,
		startedAt: time.Now(),
	}
}

// Register mounts all routes on the router.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/alive", h.Alive)
	r.POST("/v1/audio/transcriptions", h.Transcriptions)
}

const tracerName = "whisper-server/api"

// Transcriptions handles a single transcription request end to end.
func (h *Handler) Transcriptions(c *gin.Context) {
	requestID := c.GetString(server.CtxRequestID)

	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "transcription",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	span.SetAttributes(attribute.String("request_id", requestID))

	job, apiErr := h.buildJob(c)
	if apiErr != nil {
		apiErr = apiErr.WithRequestID(requestID)
		span.SetStatus(codes.Error, string(apiErr.Type))
		h.writeError(c, apiErr)
		return
	}
	span.SetAttributes(
		attribute.String("job_id", job.ID),
		attribute.Int64("size_bytes", job.Size),
	)

	res, apiErr := h.svc.Process(ctx, job)
	if apiErr != nil {
		h.countError(job, apiErr)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, string(apiErr.Type))
		h.writeError(c, apiErr)
		return
	}
	if h.metrics != nil {
		h.metrics.JobCompleted()
	}
	span.SetAttributes(
		attribute.String("format", job.Format),
		attribute.Float64("duration_seconds", res.Duration),
	)

	contentType, body, err := transcribe.FormatResult(res, job.Params.ResponseFormat)
	if err != nil {
		h.writeError(c, apierr.ServerError(err).WithRequestID(requestID))
		return
	}
	c.Data(http.StatusOK, contentType, body)
}

// buildJob parses the multipart form into a Job without validating the
// audio itself; that is the pipeline's business.
func (h *Handler) buildJob(c *gin.Context) (*transcribe.Job, *apierr.Error) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			return nil, apierr.FileTooLarge(c.Request.ContentLength, h.cfg.MaxFileSize)
		}
		return nil, apierr.InvalidRequest("missing or unreadable 'file' field")
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		if isBodyTooLarge(err) {
			return nil, apierr.FileTooLarge(c.Request.ContentLength, h.cfg.MaxFileSize)
		}
		return nil, apierr.InvalidRequest("reading uploaded file: " + err.Error())
	}

	params := transcribe.Params{
		Model:          c.PostForm("model"),
		Language:       c.PostForm("language"),
		ResponseFormat: c.DefaultPostForm("response_format", "json"),
		Temperature:    0,
	}
	if params.Model == "" {
		params.Model = h.cfg.Model
	}
	if raw := c.PostForm("temperature"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, apierr.InvalidRequest("temperature must be a number")
		}
		params.Temperature = t
	}

	job := transcribe.NewJob(header.Filename, header.Header.Get("Content-Type"), payload, params)
	job.RequestID = c.GetString(server.CtxRequestID)
	job.CorrelationID = c.GetString(server.CtxCorrelationID)
	return job, nil
}

// countError records the terminal outcome in the metrics core.
func (h *Handler) countError(job *transcribe.Job, apiErr *apierr.Error) {
	if h.metrics == nil {
		return
	}
	if job.State() == transcribe.StateFailed {
		h.metrics.JobFailed(string(apiErr.Type))
		return
	}
	h.metrics.JobRejected(string(apiErr.Type))
}

func (h *Handler) writeError(c *gin.Context, apiErr *apierr.Error) {
	c.JSON(apiErr.HTTPStatus, apiErr.ToResponse())
}

// isBodyTooLarge detects the limit set by the body size middleware.
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
