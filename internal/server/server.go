package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"plinkage/internal/domain"
	"plinkage/internal/engine"
	"plinkage/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   zerolog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"project_full"`
	Message string         `json:"message" example:"project has no open slots"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"project_id\":\"p1\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the PLinkage API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(cfg.Logger))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("PLinkage API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerOwners(group, cfg.Engine)
	registerProviders(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerEngagements(group, cfg.Engine)
	registerResignations(group, cfg.Engine)
	registerRatings(group, cfg.Engine)
	registerMessages(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerMe(group)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
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
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadyResolved):
		return newAPIError(http.StatusConflict, "already_resolved", err.Error(), nil)
	case errors.Is(err, engine.ErrProjectFull):
		return newAPIError(http.StatusConflict, "project_full", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadyEmployed):
		return newAPIError(http.StatusConflict, "already_employed", err.Error(), nil)
	case errors.Is(err, engine.ErrProjectNotActive):
		return newAPIError(http.StatusUnprocessableEntity, "project_not_active", err.Error(), nil)
	case errors.Is(err, engine.ErrTimeframeExceedsDuration):
		return newAPIError(http.StatusUnprocessableEntity, "timeframe_exceeds_project_duration", err.Error(), nil)
	case errors.Is(err, engine.ErrInsufficientCapacityForMembers):
		return newAPIError(http.StatusUnprocessableEntity, "insufficient_capacity_for_members", err.Error(), nil)
	case errors.Is(err, engine.ErrCannotCompleteWithoutMembers):
		return newAPIError(http.StatusUnprocessableEntity, "cannot_complete_without_members", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidDateRange):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_date_range", err.Error(), nil)
	case errors.Is(err, engine.ErrCannotDeactivateWithMembers):
		return newAPIError(http.StatusUnprocessableEntity, "cannot_deactivate_with_members", err.Error(), nil)
	case errors.Is(err, engine.ErrUnresolvedResignation):
		return newAPIError(http.StatusUnprocessableEntity, "unresolved_resignation", err.Error(), nil)
	case errors.Is(err, engine.ErrReasonRequired):
		return newAPIError(http.StatusBadRequest, "reason_required", err.Error(), nil)
	case errors.Is(err, engine.ErrStoreUnavailable):
		return newAPIError(http.StatusServiceUnavailable, "store_unavailable", "store unavailable", nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already rated"):
		return newAPIError(http.StatusConflict, "already_rated", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") ||
		strings.Contains(lowered, "must"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
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

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
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
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	devLoginPath := path.Join(basePath, "auth/dev/login")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	if !strings.HasPrefix(devLoginPath, "/") {
		devLoginPath = "/" + devLoginPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || route == devLoginPath {
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
    <title>PLinkage API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
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

func registerOwners(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-owner",
		Method:        http.MethodPost,
		Path:          "/owners",
		Summary:       "Register project owner",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body RegisterOwnerRequest `json:"body"`
	}) (*struct {
		Body OwnerResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		o, err := e.RegisterOwner(ctx, input.Body.FirstName, input.Body.LastName, input.Body.Email, input.Body.Location)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OwnerResponse `json:"body"`
		}{Body: ownerResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-owner",
		Method:      http.MethodGet,
		Path:        "/owners/{owner_id}",
		Summary:     "Get project owner",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OwnerID string `path:"owner_id"`
	}) (*struct {
		Body OwnerResponse `json:"body"`
	}, error) {
		o, err := e.Repo.GetOwner(ctx, input.OwnerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OwnerResponse `json:"body"`
		}{Body: ownerResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-owners",
		Method:      http.MethodGet,
		Path:        "/owners",
		Summary:     "List project owners",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []OwnerResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListOwners(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]OwnerResponse, 0, len(items))
		for _, o := range items {
			res = append(res, ownerResponse(o))
		}
		return &struct {
			Body []OwnerResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerProviders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-provider",
		Method:        http.MethodPost,
		Path:          "/providers",
		Summary:       "Register skill provider",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body RegisterProviderRequest `json:"body"`
	}) (*struct {
		Body ProviderResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p, err := e.RegisterProvider(ctx, input.Body.FirstName, input.Body.LastName, input.Body.Email, input.Body.Location, input.Body.Skills)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProviderResponse `json:"body"`
		}{Body: providerResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-provider",
		Method:      http.MethodGet,
		Path:        "/providers/{provider_id}",
		Summary:     "Get skill provider",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProviderID string `path:"provider_id"`
	}) (*struct {
		Body ProviderResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProvider(ctx, input.ProviderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProviderResponse `json:"body"`
		}{Body: providerResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-providers",
		Method:      http.MethodGet,
		Path:        "/providers",
		Summary:     "List skill providers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProviderResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListProviders(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ProviderResponse, 0, len(items))
		for _, p := range items {
			res = append(res, providerResponse(p))
		}
		return &struct {
			Body []ProviderResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-provider-projects",
		Method:      http.MethodGet,
		Path:        "/providers/{provider_id}/projects",
		Summary:     "Projects the provider is a member of",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProviderID string `path:"provider_id"`
	}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProvider(ctx, input.ProviderID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ProjectsByMember(ctx, input.ProviderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
			OwnerID:         actorID,
			Name:            input.Body.Name,
			Description:     input.Body.Description,
			Location:        input.Body.Location,
			Priority:        input.Body.Priority,
			SkillsRequired:  input.Body.SkillsRequired,
			StartDate:       input.Body.StartDate,
			EndDate:         input.Body.EndDate,
			ResourcesNeeded: input.Body.ResourcesNeeded,
			ActorID:         actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		OwnerID string `query:"owner_id"`
		Status  string `query:"status" enum:"active,completed,deactivated"`
		Limit   int    `query:"limit" default:"50"`
		Cursor  string `query:"cursor"`
	}) (*struct {
		Body paginatedProjects `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{
			OwnerID:         input.OwnerID,
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedProjects{Items: []ProjectResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		resp.Items = mapProjects(items)
		return &struct {
			Body paginatedProjects `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reconcile-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/reconcile",
		Summary:     "Apply batch project update",
		Description: "Applies field edits, staged member removals and denied resignations atomically.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		Body      ReconcileProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if p.OwnerID != actorID {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only the project owner may reconcile", nil)
		}
		edits := engine.ProjectEdits{
			Description:     input.Body.Description,
			Location:        input.Body.Location,
			Priority:        input.Body.Priority,
			SkillsRequired:  input.Body.SkillsRequired,
			StartDate:       input.Body.StartDate,
			EndDate:         input.Body.EndDate,
			ResourcesNeeded: input.Body.ResourcesNeeded,
		}
		if input.Body.Status != nil {
			status, err := domain.ParseProjectStatus(*input.Body.Status)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
			}
			edits.Status = &status
		}
		updated, err := e.ReconcileProjectUpdate(ctx, input.ProjectID, edits, input.Body.PendingRemovals, input.Body.PendingRejections, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(updated)}, nil
	})
}

func registerEngagements(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-engagement",
		Method:        http.MethodPost,
		Path:          "/engagements",
		Summary:       "Create engagement",
		Description:   "Sends an offer (owner to provider) or an application (provider to owner).",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateEngagementRequest `json:"body"`
	}) (*struct {
		Body EngagementResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		kind, err := domain.ParseEngagementKind(input.Body.Kind)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		eng, err := e.CreateEngagement(ctx, engine.EngagementDraft{
			Kind:       kind,
			SenderID:   input.Body.SenderID,
			ReceiverID: input.Body.ReceiverID,
			ProjectID:  input.Body.ProjectID,
			Rate:       input.Body.Rate,
			TimeFrame:  input.Body.TimeFrame,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EngagementResponse `json:"body"`
		}{Body: engagementResponse(eng)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-engagement",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}",
		Summary:     "Get engagement",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
	}) (*struct {
		Body EngagementResponse `json:"body"`
	}, error) {
		eng, err := e.Repo.GetEngagement(ctx, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EngagementResponse `json:"body"`
		}{Body: engagementResponse(eng)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-engagements",
		Method:      http.MethodGet,
		Path:        "/engagements",
		Summary:     "List engagements",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		Kind      string `query:"kind" enum:"application,offer"`
		Status    string `query:"status" enum:"pending,accepted,rejected"`
		PartyID   string `query:"party_id"`
		Limit     int    `query:"limit" default:"50"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedEngagements `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListEngagements(ctx, repo.EngagementFilters{
			ProjectID:       input.ProjectID,
			Kind:            input.Kind,
			Status:          input.Status,
			PartyID:         input.PartyID,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEngagements{Items: []EngagementResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		for _, eng := range items {
			resp.Items = append(resp.Items, engagementResponse(eng))
		}
		return &struct {
			Body paginatedEngagements `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-engagement",
		Method:      http.MethodPost,
		Path:        "/engagements/{engagement_id}/accept",
		Summary:     "Accept engagement",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
	}) (*struct {
		Body EngagementResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		eng, err := e.AcceptEngagement(ctx, input.EngagementID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EngagementResponse `json:"body"`
		}{Body: engagementResponse(eng)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-engagement",
		Method:      http.MethodPost,
		Path:        "/engagements/{engagement_id}/reject",
		Summary:     "Reject engagement",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
	}) (*struct {
		Body EngagementResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		eng, err := e.RejectEngagement(ctx, input.EngagementID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EngagementResponse `json:"body"`
		}{Body: engagementResponse(eng)}, nil
	})
}

func registerResignations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "propose-resignation",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/members/{member_id}/resignation",
		Summary:       "Propose resignation",
		Description:   "Flags the member as resigning; the owner resolves it in the next reconcile.",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                    `path:"project_id"`
		MemberID  string                    `path:"member_id"`
		Body      ProposeResignationRequest `json:"body"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if actorID != input.MemberID {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only the member may propose their resignation", nil)
		}
		if err := e.ProposeResignation(ctx, input.ProjectID, input.MemberID, input.Body.Reason, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerRatings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "rate-member",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/members/{member_id}/rating",
		Summary:       "Rate member",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		MemberID  string            `path:"member_id"`
		Body      RateMemberRequest `json:"body"`
	}) (*struct {
		Body RatingResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if p.OwnerID != actorID {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only the project owner may rate members", nil)
		}
		rt, err := e.RateMember(ctx, input.ProjectID, input.MemberID, input.Body.Score, input.Body.Comment, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RatingResponse `json:"body"`
		}{Body: ratingResponse(rt)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-provider-ratings",
		Method:      http.MethodGet,
		Path:        "/providers/{provider_id}/ratings",
		Summary:     "List provider ratings",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProviderID string `path:"provider_id"`
	}) (*struct {
		Body []RatingResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProvider(ctx, input.ProviderID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListRatingsByProvider(ctx, input.ProviderID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]RatingResponse, 0, len(items))
		for _, rt := range items {
			res = append(res, ratingResponse(rt))
		}
		return &struct {
			Body []RatingResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerMessages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "send-message",
		Method:        http.MethodPost,
		Path:          "/messages",
		Summary:       "Send message",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body SendMessageRequest `json:"body"`
	}) (*struct {
		Body MessageResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.SendMessage(ctx, actorID, input.Body.ReceiverID, input.Body.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MessageResponse `json:"body"`
		}{Body: messageResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/messages",
		Summary:     "List messages for the current actor",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedMessages `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorSentAt, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListMessages(ctx, repo.MessageFilters{
			ReceiverID:   actorID,
			Limit:        limit + 1,
			CursorSentAt: cursorSentAt,
			CursorID:     cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedMessages{Items: []MessageResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].SentAt, items[limit].ID)
			items = items[:limit]
		}
		for _, m := range items {
			resp.Items = append(resp.Items, messageResponse(m))
		}
		return &struct {
			Body paginatedMessages `json:"body"`
		}{Body: resp}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"project,engagement,member,message"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.ProjectID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	type apiKeyResponse struct {
		ID        string `json:"id"`
		ActorID   string `json:"actor_id"`
		Name      string `json:"name,omitempty"`
		CreatedAt string `json:"created_at" format:"date-time"`
	}
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create API key",
		Description:   "The plaintext key is returned once and only its hash is stored.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Name string `json:"name,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			apiKeyResponse
			Key string `json:"key"`
		} `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plaintext := uuid.New().String()
		key := domain.APIKey{
			ID:        uuid.New().String(),
			ActorID:   actorID,
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(plaintext),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				apiKeyResponse
				Key string `json:"key"`
			} `json:"body"`
		}{}
		out.Body.ID = key.ID
		out.Body.ActorID = key.ActorID
		out.Body.Name = key.Name
		out.Body.CreatedAt = key.CreatedAt
		out.Body.Key = plaintext
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys for the current actor",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []apiKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]apiKeyResponse, 0, len(keys))
		for _, k := range keys {
			res = append(res, apiKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []apiKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/api-keys/{key_id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API) {
	type meResponse struct {
		ActorID string `json:"actor_id"`
		Source  string `json:"source"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body meResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok || principal.ActorID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body meResponse `json:"body"`
		}{Body: meResponse{ActorID: principal.ActorID, Source: principal.Source}}, nil
	})
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}
