package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"goalpace/internal/domain"
	"goalpace/internal/engine"
	"goalpace/internal/events"
	"goalpace/internal/progress"
	"goalpace/internal/report"
)

// History is the optional claim and event log behind the ledger. It is only
// available with the SQLite backend.
type History interface {
	ListClaims(ctx context.Context, pool string, limit int) ([]domain.LedgerEntry, error)
	EventsAfter(ctx context.Context, limit int, cursor int64, evtType string) ([]domain.Event, error)
	RecordEvent(ctx context.Context, evtType, entityKind, entityID string, payload events.Payload) error
}

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	History  History
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"unknown_category"`
	Message string         `json:"message" example:"unknown category: \"knitting\""`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the goal pacing API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Engine.Registry == nil {
		return nil, errors.New("engine not configured")
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Goalpace API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerWeek(group, cfg.Engine)
	registerGoals(group, cfg.Engine)
	registerProgress(group, cfg.Engine)
	registerReport(group, cfg.Engine, cfg.History)
	registerPassEligibility(group, cfg.Engine)
	registerBests(group, cfg.Engine)
	registerClaims(group, cfg.Engine, cfg.History)
	registerEvents(group, cfg.History)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var ce domain.ConfigurationError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusInternalServerError, "configuration_error", err.Error(), map[string]any{"field": ce.Field})
	}
	switch {
	case errors.Is(err, domain.ErrUnknownCategory):
		return newAPIError(http.StatusNotFound, "unknown_category", err.Error(), nil)
	case errors.Is(err, domain.ErrUnknownMetric):
		return newAPIError(http.StatusNotFound, "unknown_metric", err.Error(), nil)
	case errors.Is(err, domain.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidPool),
		errors.Is(err, domain.ErrInvalidPeriodKey),
		errors.Is(err, domain.ErrInvalidRecord),
		errors.Is(err, domain.ErrInvalidDate),
		errors.Is(err, domain.ErrInvalidOutcome),
		errors.Is(err, domain.ErrInvalidDirection):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func operations(item *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace}
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range operations(item) {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range operations(item) {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Goalpace API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerWeek(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-week",
		Method:      http.MethodGet,
		Path:        "/week",
		Summary:     "Current tracking week",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WeekResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WeekResponse `json:"body"`
		}{Body: mapWeek(e.Week())}, nil
	})
}

func registerGoals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-goals",
		Method:      http.MethodGet,
		Path:        "/goals",
		Summary:     "Goal registry in declaration order",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []GoalResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []GoalResponse `json:"body"`
		}{Body: mapGoals(e.Registry.All())}, nil
	})
}

func registerProgress(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "evaluate-progress",
		Method:      http.MethodPost,
		Path:        "/progress",
		Summary:     "Evaluate goal progress for the current week",
	}, func(ctx context.Context, input *struct {
		Body RecordsRequest `json:"body"`
	}) (*struct {
		Body SummaryResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		records, diags := progress.Parse(input.Body.Records)
		return &struct {
			Body SummaryResponse `json:"body"`
		}{Body: mapSummary(e.Progress(records), diags)}, nil
	})
}

func registerReport(api huma.API, e engine.Engine, history History) {
	huma.Register(api, huma.Operation{
		OperationID: "compose-report",
		Method:      http.MethodPost,
		Path:        "/report",
		Summary:     "Compose the weekly text report",
	}, func(ctx context.Context, input *struct {
		Body ReportRequest `json:"body"`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		var extras []report.Extra
		if len(input.Body.Milestones) > 0 {
			extras = append(extras, report.Milestones("Milestones", input.Body.Milestones))
		}
		rep := e.Report(input.Body.Records, extras...)
		if history != nil {
			if err := history.RecordEvent(ctx, events.TypeReportComposed, "report", rep.ID, events.Payload{
				"period_key": rep.Window.PeriodKey(),
				"severity":   string(rep.Summary.Severity),
				"text":       rep.Text,
			}); err != nil {
				return nil, handleError(err)
			}
		}
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: mapReport(rep)}, nil
	})
}

func registerPassEligibility(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "pass-eligibility",
		Method:      http.MethodPost,
		Path:        "/pass-eligibility",
		Summary:     "Whether a pass may be offered today",
	}, func(ctx context.Context, input *struct {
		Body PassEligibilityRequest `json:"body"`
	}) (*struct {
		Body PassEligibilityResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		records, _ := progress.Parse(input.Body.Records)
		ok, err := e.CanPass(input.Body.Category, records)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PassEligibilityResponse `json:"body"`
		}{Body: PassEligibilityResponse{Category: input.Body.Category, CanPass: ok}}, nil
	})
}

func registerBests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "check-best",
		Method:      http.MethodPost,
		Path:        "/bests",
		Summary:     "Check a candidate value against its history",
	}, func(ctx context.Context, input *struct {
		Body BestRequest `json:"body"`
	}) (*struct {
		Body BestResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		res, err := e.CheckBest(input.Body.MetricKey, input.Body.History, input.Body.Candidate)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BestResponse `json:"body"`
		}{Body: mapBest(res)}, nil
	})
}

func registerClaims(api huma.API, e engine.Engine, history History) {
	huma.Register(api, huma.Operation{
		OperationID:   "claim-achievement",
		Method:        http.MethodPost,
		Path:          "/claims",
		Summary:       "Claim a pool achievement for a period",
		DefaultStatus: http.StatusOK,
	}, func(ctx context.Context, input *struct {
		Body ClaimRequest `json:"body"`
	}) (*struct {
		Body ClaimResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermClaim); err != nil {
			return nil, handleError(err)
		}
		pool := strings.TrimSpace(input.Body.Pool)
		key := strings.TrimSpace(input.Body.PeriodKey)
		var res domain.ClaimResult
		var err error
		if key == "" {
			res, key, err = e.ClaimWeek(ctx, pool)
		} else {
			res, err = e.Claim(ctx, pool, key)
		}
		if err != nil {
			return nil, handleError(err)
		}
		out := ClaimResponse{Pool: pool, PeriodKey: key, Claimed: res.Claimed, Level: res.Level}
		if res.Claimed {
			out.Announcement = report.Announcement(pool, res.Level)
		}
		return &struct {
			Body ClaimResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-week",
		Method:      http.MethodPost,
		Path:        "/completions",
		Summary:     "Claim a pool once every goal of the week is complete",
	}, func(ctx context.Context, input *struct {
		Body CompletionRequest `json:"body"`
	}) (*struct {
		Body CompletionResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermClaim); err != nil {
			return nil, handleError(err)
		}
		records, diags := progress.Parse(input.Body.Records)
		pool := strings.TrimSpace(input.Body.Pool)
		c, err := e.CompleteWeek(ctx, pool, records)
		if err != nil {
			return nil, handleError(err)
		}
		out := CompletionResponse{
			Summary:      mapSummary(c.Summary, diags),
			Attempted:    c.Attempted,
			Announcement: c.Announcement,
		}
		if c.Attempted {
			out.Claim = &ClaimResponse{Pool: pool, PeriodKey: c.PeriodKey, Claimed: c.Claim.Claimed, Level: c.Claim.Level, Announcement: c.Announcement}
		}
		return &struct {
			Body CompletionResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-claim",
		Method:      http.MethodGet,
		Path:        "/claims/{pool}/{period_key}",
		Summary:     "Ledger entry for a pool and period",
	}, func(ctx context.Context, input *struct {
		Pool      string `path:"pool"`
		PeriodKey string `path:"period_key"`
	}) (*struct {
		Body domain.LedgerEntry `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		entry, err := e.Entry(ctx, input.Pool, input.PeriodKey)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LedgerEntry `json:"body"`
		}{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-claims",
		Method:      http.MethodGet,
		Path:        "/claims/{pool}",
		Summary:     "Claimed periods of a pool, highest level first",
	}, func(ctx context.Context, input *struct {
		Pool  string `path:"pool"`
		Limit int    `query:"limit"`
	}) (*struct {
		Body ClaimListResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		if history == nil {
			return nil, newAPIError(http.StatusNotImplemented, "not_implemented", "claim history requires the sqlite ledger", nil)
		}
		items, err := history.ListClaims(ctx, input.Pool, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.LedgerEntry{}
		}
		return &struct {
			Body ClaimListResponse `json:"body"`
		}{Body: ClaimListResponse{Items: items}}, nil
	})
}

func registerEvents(api huma.API, history History) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Outbound events after a cursor",
	}, func(ctx context.Context, input *struct {
		After int64  `query:"after"`
		Limit int    `query:"limit"`
		Type  string `query:"type"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		if history == nil {
			return nil, newAPIError(http.StatusNotImplemented, "not_implemented", "event log requires the sqlite ledger", nil)
		}
		items, err := history.EventsAfter(ctx, normalizeLimit(input.Limit), input.After, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		next := input.After
		if len(items) > 0 {
			next = items[len(items)-1].ID
		} else {
			items = []domain.Event{}
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: EventListResponse{Items: items, NextCursor: next}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 500 {
		return 500
	}
	return in
}
