package httpserver

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appai "github.com/bryanwahyu/invoice-audit/internal/application/ai"
	appaudit "github.com/bryanwahyu/invoice-audit/internal/application/audit"
	appcomments "github.com/bryanwahyu/invoice-audit/internal/application/comments"
	appdatasets "github.com/bryanwahyu/invoice-audit/internal/application/datasets"
	"github.com/bryanwahyu/invoice-audit/internal/domain/comments"
	"github.com/bryanwahyu/invoice-audit/internal/domain/datasets"
	ierr "github.com/bryanwahyu/invoice-audit/internal/errors"
	"github.com/bryanwahyu/invoice-audit/internal/logger"
	"github.com/bryanwahyu/invoice-audit/internal/middleware"
)

// Services the HTTP surface delegates to
type Services struct {
	Datasets *appdatasets.Service
	Audit    *appaudit.Service
	Comments *appcomments.Service
	AI       *appai.Service
}

type Options struct {
	APIKeys        map[string]string // tenant -> key; empty disables auth
	RateLimit      int               // requests per minute per tenant+ip
	AllowedOrigins []string
	MaxUploadBytes int64
	HealthCheckers map[string]middleware.HealthChecker
	Log            *logger.Logger
	Stop           <-chan struct{} // ends background middleware goroutines
}

type Router struct {
	svc  Services
	opts Options
	log  *logger.Logger
}

func NewRouter(svc Services, opts Options) http.Handler {
	if opts.Log == nil {
		opts.Log = logger.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 64 << 20
	}
	r := &Router{svc: svc, opts: opts, log: opts.Log}
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	mux.Use(middleware.LoggingMiddleware(opts.Log))
	mux.Use(middleware.MetricsMiddleware)
	if len(opts.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	}
	if opts.RateLimit > 0 {
		mux.Use(middleware.RateLimitMiddleware(opts.RateLimit, opts.Stop))
	}

	mux.Get("/health", middleware.HealthHandler(opts.HealthCheckers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Use(middleware.RequireValidTenant)

		rt.Post("/datasets", r.wrap(r.handleUpload))
		rt.Get("/datasets", r.wrap(r.handleListDatasets))
		rt.Route("/datasets/{id}", func(ds chi.Router) {
			ds.Get("/", r.wrap(r.handleGetDataset))
			ds.Delete("/", r.wrap(r.handleDeleteDataset))
			ds.Get("/summary", r.wrap(r.handleSummary))
			ds.Get("/duplicates", r.wrap(r.handleDuplicates))
			ds.Get("/crn-ratio", r.wrap(r.handleRatios))
			ds.Get("/export/duplicates.csv", r.wrap(r.handleExportDuplicates))
			ds.Get("/export/crn-ratio.csv", r.wrap(r.handleExportRatios))
			ds.Get("/export/report.xlsx", r.wrap(r.handleExportWorkbook))
			ds.Post("/sellers/{gstin}/review", r.wrap(r.handleReviewSeller))
			ds.Post("/comments", r.wrap(r.handleAddComment))
			ds.Get("/comments", r.wrap(r.handleListComments))
		})
		rt.Delete("/comments/{commentID}", r.wrap(r.handleDeleteComment))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status := ierr.HTTPStatus(err)
			if status >= http.StatusInternalServerError {
				r.log.Errorw("request failed",
					"path", req.URL.Path,
					"request_id", chimw.GetReqID(req.Context()),
					"error", err,
				)
			}
			writeJSON(w, status, map[string]any{
				"error": map[string]string{
					"code":    ierr.Code(err),
					"message": ierr.Message(err),
				},
			})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func datasetParam(req *http.Request) (datasets.DatasetID, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateDatasetID(id); err != nil {
		return "", ierr.WrapValidation(err, "bad dataset id")
	}
	return datasets.DatasetID(id), nil
}

//
// ==== Datasets ====
//

// POST /v1/{tenant}/datasets (multipart, field "file")
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	req.Body = http.MaxBytesReader(w, req.Body, r.opts.MaxUploadBytes)

	file, header, err := req.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return ierr.Validationf("upload exceeds %d bytes", r.opts.MaxUploadBytes)
		}
		return ierr.WrapValidation(err, "multipart field \"file\" is required")
	}
	defer file.Close()

	ds, err := r.svc.Datasets.Upload(req.Context(), appdatasets.UploadCommand{
		TenantID: tenant,
		Filename: middleware.SanitizeString(header.Filename),
		Body:     file,
	})
	if err != nil {
		return err
	}
	middleware.IncrementDatasetsUploaded()
	return writeJSON(w, http.StatusCreated, ds)
}

// GET /v1/{tenant}/datasets?page=&page_size=
func (r *Router) handleListDatasets(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	q := req.URL.Query()
	page := appaudit.AtoiDefault(q.Get("page"), 1)
	size := middleware.ValidatePageSize(appaudit.AtoiDefault(q.Get("page_size"), 0))

	list, err := r.svc.Datasets.List(req.Context(), tenant, page, size)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/{tenant}/datasets/{id}
func (r *Router) handleGetDataset(w http.ResponseWriter, req *http.Request) error {
	id, err := datasetParam(req)
	if err != nil {
		return err
	}
	ds, err := r.svc.Datasets.Get(req.Context(), chi.URLParam(req, "tenant"), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, ds)
}

// DELETE /v1/{tenant}/datasets/{id}
func (r *Router) handleDeleteDataset(w http.ResponseWriter, req *http.Request) error {
	id, err := datasetParam(req)
	if err != nil {
		return err
	}
	if err := r.svc.Datasets.Delete(req.Context(), chi.URLParam(req, "tenant"), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

//
// ==== Audit views ====
//

// GET /v1/{tenant}/datasets/{id}/summary
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	id, err := datasetParam(req)
	if err != nil {
		return err
	}
	a, err := r.svc.Audit.Summary(req.Context(), chi.URLParam(req, "tenant"), id)
	if err != nil {
		return err
	}
	middleware.IncrementAnalyses()
	return writeJSON(w, http.StatusOK, a)
}

// pageQuery reads DataTables server-side parameters
func pageQuery(req *http.Request, defaultColumn int) appaudit.PageQuery {
	q := req.URL.Query()
	search := q.Get("search[value]")
	if search == "" {
		search = q.Get("search")
	}
	return appaudit.PageQuery{
		Draw:        appaudit.AtoiDefault(q.Get("draw"), 1),
		Start:       appaudit.AtoiDefault(q.Get("start"), 0),
		Length:      appaudit.AtoiDefault(q.Get("length"), 0),
		Search:      middleware.SanitizeString(search),
		OrderColumn: appaudit.AtoiDefault(q.Get("order[0][column]"), defaultColumn),
		OrderDesc:   appaudit.ParseOrderDir(q.Get("order[0][dir]")),
	}
}

// GET /v1/{tenant}/datasets/{id}/duplicates
func (r *Router) handleDuplicates(w http.ResponseWriter, req *http.Request) error {
	id, err := datasetParam(req)
	if err != nil {
		return err
	}
	page, err := r.svc.Audit.Duplicates(req.Context(), chi.URLParam(req, "tenant"), id, pageQuery(req, appaudit.ColRowNum))
	if err != nil {
		return err
	}
	middleware.IncrementAnalyses()
	return writeJSON(w, http.StatusOK, page)
}

// GET /v1/{tenant}/datasets/{id}/crn-ratio
func (r *Router) handleRatios(w http.ResponseWriter, req *http.Request) error {
	id, err := datasetParam(req)
	if err != nil {
		return err
	}
	page, err := r.svc.Audit.Ratios(req.Context(), chi.URLParam(req, "tenant"), id, pageQuery(req, appaudit.DefaultColumn))
	if err != nil {
		return err
	}
	middleware.IncrementAnalyses()
	return writeJSON(w, http.StatusOK, page)
}

//
// ==== Exports ====
//

type exportFunc func(req *http.Request, tenant string, id datasets.DatasetID, buf *bytes.Buffer) error

// export renders into memory first so failures still get a JSON error
func (r *Router) export(suffix, contentType string, fn exportFunc) handlerFunc {
	return func(w http.ResponseWriter, req *http.Request) error {
		id, err := datasetParam(req)
		if err != nil {
			return err
		}
		tenant := chi.URLParam(req, "tenant")
		ds, err := r.svc.Datasets.Get(req.Context(), tenant, id)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := fn(req, tenant, id, &buf); err != nil {
			return err
		}
		middleware.IncrementExports()

		base := strings.TrimSuffix(ds.Filename, filepath.Ext(ds.Filename))
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": base + suffix}))
		w.WriteHeader(http.StatusOK)
		_, err = buf.WriteTo(w)
		return err
	}
}

func (r *Router) handleExportDuplicates(w http.ResponseWriter, req *http.Request) error {
	return r.export("_duplicates.csv", "text/csv", func(req *http.Request, tenant string, id datasets.DatasetID, buf *bytes.Buffer) error {
		return r.svc.Audit.ExportDuplicatesCSV(req.Context(), tenant, id, buf)
	})(w, req)
}

func (r *Router) handleExportRatios(w http.ResponseWriter, req *http.Request) error {
	return r.export("_crn_ratio.csv", "text/csv", func(req *http.Request, tenant string, id datasets.DatasetID, buf *bytes.Buffer) error {
		return r.svc.Audit.ExportRatiosCSV(req.Context(), tenant, id, buf)
	})(w, req)
}

func (r *Router) handleExportWorkbook(w http.ResponseWriter, req *http.Request) error {
	return r.export("_audit.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		func(req *http.Request, tenant string, id datasets.DatasetID, buf *bytes.Buffer) error {
			return r.svc.Audit.ExportWorkbook(req.Context(), tenant, id, buf)
		})(w, req)
}

//
// ==== AI review ====
//

// POST /v1/{tenant}/datasets/{id}/sellers/{gstin}/review
func (r *Router) handleReviewSeller(w http.ResponseWriter, req *http.Request) error {
	id, err := datasetParam(req)
	if err != nil {
		return err
	}
	gstin := chi.URLParam(req, "gstin")
	if err := middleware.ValidateGSTIN(gstin); err != nil {
		return ierr.WrapValidation(err, "bad seller")
	}

	middleware.IncrementReviews()
	review, err := r.svc.AI.ReviewSeller(req.Context(), chi.URLParam(req, "tenant"), id, gstin)
	if err != nil {
		middleware.IncrementReviewsFailed()
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"dataset_id":  id,
		"gstin":       gstin,
		"review":      review,
		"reviewed_at": time.Now().UTC(),
	})
}

//
// ==== Comments ====
//

// POST /v1/{tenant}/datasets/{id}/comments
// Body: {"kind":"seller","target_key":"<gstin>","author":"..","body":".."}
func (r *Router) handleAddComment(w http.ResponseWriter, req *http.Request) error {
	id, err := datasetParam(req)
	if err != nil {
		return err
	}
	tenant := chi.URLParam(req, "tenant")
	if _, err := r.svc.Datasets.Get(req.Context(), tenant, id); err != nil {
		return err
	}

	var body appcomments.CreateComment
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 64<<10)).Decode(&body); err != nil {
		return ierr.WrapValidation(err, "invalid json body")
	}
	body.TenantID = tenant
	body.DatasetID = string(id)
	body.Author = middleware.SanitizeString(body.Author)
	body.Body = middleware.SanitizeString(body.Body)

	c, err := r.svc.Comments.Add(req.Context(), body)
	if err != nil {
		return err
	}
	middleware.IncrementComments()
	return writeJSON(w, http.StatusCreated, c)
}

// GET /v1/{tenant}/datasets/{id}/comments?kind=&key=
func (r *Router) handleListComments(w http.ResponseWriter, req *http.Request) error {
	id, err := datasetParam(req)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	list, err := r.svc.Comments.List(req.Context(), chi.URLParam(req, "tenant"), string(id), q.Get("kind"), q.Get("key"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

// DELETE /v1/{tenant}/comments/{commentID}
func (r *Router) handleDeleteComment(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "commentID")
	if err := middleware.ValidateDatasetID(id); err != nil {
		return ierr.Validationf("invalid comment ID format")
	}
	if err := r.svc.Comments.Delete(req.Context(), chi.URLParam(req, "tenant"), comments.CommentID(id)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
