// Package server exposes the pipeline engine over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dealflow/internal/bridge"
	appconfig "dealflow/internal/config"
	"dealflow/internal/domain"
	"dealflow/internal/engine"
	"dealflow/internal/metrics"
	"dealflow/internal/repo"
	"dealflow/internal/risk"
	"dealflow/internal/stats"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Bridge   bridge.Bridge
	AppCfg   *appconfig.Config
	BasePath string
	Auth     AuthConfig
	Version  string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"não é possível mover para Proposta sem valor definido"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the dealflow API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
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
	router.Use(middleware.Recoverer)
	router.Use(metricsMiddleware)
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Store))
	router.Handle("/metrics", promhttp.Handler())

	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}
	hcfg := huma.DefaultConfig("Dealflow API", version)
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerPipelines(group, cfg.Engine)
	registerStages(group, cfg.Engine)
	registerDeals(group, cfg.Engine)
	registerTransitions(group, cfg.Engine)
	registerInsights(group, cfg.Engine, cfg.AppCfg)
	registerAgentActions(group, cfg.Bridge)
	registerEvents(group, cfg.Engine)

	startWebhookDispatcher(cfg.Engine, cfg.AppCfg)

	return router, nil
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = r.URL.Path
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, routePattern, strconv.Itoa(ww.Status())).Inc()
	})
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

// handleError maps engine and store errors onto the API envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve *engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", ve.Reason, nil)
	}
	var mre *engine.MissingReasonError
	if errors.As(err, &mre) {
		return newAPIError(http.StatusUnprocessableEntity, "reason_required", err.Error(), map[string]any{"role": string(mre.Role)})
	}
	var re *engine.ReorderError
	if errors.As(err, &re) {
		return newAPIError(http.StatusBadRequest, "invalid_order", re.Reason, nil)
	}
	if errors.Is(err, repo.ErrStageInUse) {
		return newAPIError(http.StatusConflict, "stage_in_use", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrConflict) {
		return newAPIError(http.StatusConflict, "conflict", "the resource changed while you were editing it, reload and retry", nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
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
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
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

func registerPipelines(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-pipeline",
		Method:        http.MethodPost,
		Path:          "/pipelines",
		Summary:       "Create pipeline",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreatePipelineRequest `json:"body"`
	}) (*struct {
		Body PipelineResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		cfg := &appconfig.Config{}
		cfg.Pipeline.ID = input.Body.ID
		cfg.Pipeline.Name = input.Body.Name
		cfg.Pipeline.Owner = input.Body.Owner
		for _, s := range input.Body.Stages {
			cfg.Stages = append(cfg.Stages, appconfig.StageDef{
				Name:  s.Name,
				Color: s.Color,
				Role:  domain.StageRole(s.Role),
			})
		}
		p, stages, err := e.CreatePipeline(ctx, cfg, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PipelineResponse `json:"body"`
		}{Body: PipelineResponse{Pipeline: p, Stages: stages}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pipelines",
		Method:      http.MethodGet,
		Path:        "/pipelines",
		Summary:     "List pipelines",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Pipeline `json:"body"`
	}, error) {
		pipelines, err := e.Store.ListPipelines(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Pipeline `json:"body"`
		}{Body: pipelines}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-pipeline",
		Method:      http.MethodGet,
		Path:        "/pipelines/{pipeline_id}",
		Summary:     "Get pipeline with stages",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PipelineID string `path:"pipeline_id"`
	}) (*struct {
		Body PipelineResponse `json:"body"`
	}, error) {
		p, err := e.Store.GetPipeline(ctx, input.PipelineID)
		if err != nil {
			return nil, handleError(err)
		}
		stages, err := e.Store.ListStages(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PipelineResponse `json:"body"`
		}{Body: PipelineResponse{Pipeline: p, Stages: stages}}, nil
	})
}

func registerStages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-stage",
		Method:        http.MethodPost,
		Path:          "/pipelines/{pipeline_id}/stages",
		Summary:       "Append a stage to a pipeline",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		PipelineID string             `path:"pipeline_id"`
		Body       CreateStageRequest `json:"body"`
	}) (*struct {
		Body domain.Stage `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.CreateStage(ctx, input.PipelineID, input.Body.Name, input.Body.Color, domain.StageRole(input.Body.Role), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Stage `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-stage",
		Method:      http.MethodDelete,
		Path:        "/stages/{stage_id}",
		Summary:     "Delete an empty stage",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		StageID string `path:"stage_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteStage(ctx, input.StageID, actor); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "deleted"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-stages",
		Method:      http.MethodPut,
		Path:        "/pipelines/{pipeline_id}/stages/order",
		Summary:     "Reorder pipeline stages",
		Description: "The order must list every stage of the pipeline exactly once.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		PipelineID string               `path:"pipeline_id"`
		Body       ReorderStagesRequest `json:"body"`
	}) (*struct {
		Body []domain.Stage `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stages, err := e.ReorderStages(ctx, input.PipelineID, input.Body.Order, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Stage `json:"body"`
		}{Body: stages}, nil
	})
}

func registerDeals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-deal",
		Method:        http.MethodPost,
		Path:          "/deals",
		Summary:       "Create deal",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateDealRequest `json:"body"`
	}) (*struct {
		Body domain.Deal `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.CreateDeal(ctx, engine.CreateDealOptions{
			PipelineID: input.Body.PipelineID,
			StageID:    input.Body.StageID,
			LeadName:   input.Body.LeadName,
			LeadID:     input.Body.LeadID,
			Value:      input.Body.Value,
			Notes:      input.Body.Notes,
			AssignedTo: input.Body.AssignedTo,
			Actor:      actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deal `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-deals",
		Method:      http.MethodGet,
		Path:        "/deals",
		Summary:     "List deals",
	}, func(ctx context.Context, input *struct {
		PipelineID string `query:"pipeline_id"`
		StageID    string `query:"stage_id"`
		AssignedTo string `query:"assigned_to"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body []domain.Deal `json:"body"`
	}, error) {
		deals, err := e.Store.ListDeals(ctx, repo.DealFilters{
			PipelineID: input.PipelineID,
			StageID:    input.StageID,
			AssignedTo: input.AssignedTo,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Deal `json:"body"`
		}{Body: deals}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-deal",
		Method:      http.MethodGet,
		Path:        "/deals/{deal_id}",
		Summary:     "Get deal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DealID string `path:"deal_id"`
	}) (*struct {
		Body domain.Deal `json:"body"`
	}, error) {
		d, err := e.Store.GetDeal(ctx, input.DealID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deal `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-deal-value",
		Method:      http.MethodPut,
		Path:        "/deals/{deal_id}/value",
		Summary:     "Set deal value",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		DealID string             `path:"deal_id"`
		Body   UpdateValueRequest `json:"body"`
	}) (*struct {
		Body domain.Deal `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.UpdateDealValue(ctx, input.DealID, input.Body.Value, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deal `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-deal-note",
		Method:        http.MethodPost,
		Path:          "/deals/{deal_id}/notes",
		Summary:       "Append a note to a deal",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		DealID string         `path:"deal_id"`
		Body   AddNoteRequest `json:"body"`
	}) (*struct {
		Body domain.Deal `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.AddDealNote(ctx, input.DealID, input.Body.Note, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deal `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-deal",
		Method:      http.MethodPut,
		Path:        "/deals/{deal_id}/assignee",
		Summary:     "Assign a deal",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		DealID string        `path:"deal_id"`
		Body   AssignRequest `json:"body"`
	}) (*struct {
		Body domain.Deal `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.AssignDeal(ctx, input.DealID, input.Body.AssignedTo, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deal `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "schedule-task",
		Method:        http.MethodPost,
		Path:          "/deals/{deal_id}/tasks",
		Summary:       "Schedule a follow-up task",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		DealID string              `path:"deal_id"`
		Body   ScheduleTaskRequest `json:"body"`
	}) (*struct {
		Body domain.FollowUpTask `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.ScheduleTask(ctx, input.DealID, input.Body.Title, input.Body.DueAt, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.FollowUpTask `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-deal-tasks",
		Method:      http.MethodGet,
		Path:        "/deals/{deal_id}/tasks",
		Summary:     "List a deal's follow-up tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DealID string `path:"deal_id"`
	}) (*struct {
		Body []domain.FollowUpTask `json:"body"`
	}, error) {
		if _, err := e.Store.GetDeal(ctx, input.DealID); err != nil {
			return nil, handleError(err)
		}
		tasks, err := e.Store.ListFollowUpTasks(ctx, input.DealID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.FollowUpTask `json:"body"`
		}{Body: tasks}, nil
	})
}

func registerTransitions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "transition-deal",
		Method:      http.MethodPost,
		Path:        "/deals/{deal_id}/transition",
		Summary:     "Move a deal to another stage",
		Description: "Moving into a win or loss stage requires a reason from the configured catalog. Moving to the current stage is a no-op.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		DealID string            `path:"deal_id"`
		Body   TransitionRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Transition(ctx, engine.TransitionOptions{
			DealID:    input.DealID,
			ToStageID: input.Body.ToStageID,
			Actor:     actor,
			Reason:    input.Body.Reason,
			Comments:  input.Body.Comments,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TransitionResponse `json:"body"`
		}{Body: TransitionResponse{Deal: res.Deal, Record: res.Record, NoOp: res.NoOp}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deal-history",
		Method:      http.MethodGet,
		Path:        "/deals/{deal_id}/history",
		Summary:     "Transition history of a deal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DealID string `path:"deal_id"`
	}) (*struct {
		Body []domain.TransitionRecord `json:"body"`
	}, error) {
		recs, err := e.History(ctx, input.DealID)
		if err != nil {
			return nil, handleError(err)
		}
		if recs == nil {
			recs = []domain.TransitionRecord{}
		}
		return &struct {
			Body []domain.TransitionRecord `json:"body"`
		}{Body: recs}, nil
	})
}

func registerInsights(api huma.API, e engine.Engine, appCfg *appconfig.Config) {
	thresholds := risk.DefaultThresholds()
	if appCfg != nil {
		days, floor := appCfg.RiskThresholds()
		thresholds = risk.Thresholds{StagnationDays: days, HighValueFloor: floor}
	}

	snapshot := func(ctx context.Context, pipelineID string) ([]domain.Stage, []domain.Deal, error) {
		if _, err := e.Store.GetPipeline(ctx, pipelineID); err != nil {
			return nil, nil, err
		}
		stages, err := e.Store.ListStages(ctx, pipelineID)
		if err != nil {
			return nil, nil, err
		}
		deals, err := e.Store.ListDeals(ctx, repo.DealFilters{PipelineID: pipelineID})
		if err != nil {
			return nil, nil, err
		}
		return stages, deals, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "pipeline-stats",
		Method:      http.MethodGet,
		Path:        "/pipelines/{pipeline_id}/stats",
		Summary:     "Pipeline totals by stage",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PipelineID string `path:"pipeline_id"`
	}) (*struct {
		Body stats.PipelineStats `json:"body"`
	}, error) {
		stages, deals, err := snapshot(ctx, input.PipelineID)
		if err != nil {
			return nil, handleError(err)
		}
		agg := stats.Aggregate(input.PipelineID, stages, deals, time.Now().UTC(), thresholds)
		return &struct {
			Body stats.PipelineStats `json:"body"`
		}{Body: agg}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "pipeline-risk",
		Method:      http.MethodGet,
		Path:        "/pipelines/{pipeline_id}/risk",
		Summary:     "Risk flags for every open deal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PipelineID string `path:"pipeline_id"`
	}) (*struct {
		Body []risk.Flag `json:"body"`
	}, error) {
		stages, deals, err := snapshot(ctx, input.PipelineID)
		if err != nil {
			return nil, handleError(err)
		}
		byID := make(map[string]domain.Stage, len(stages))
		for _, s := range stages {
			byID[s.ID] = s
		}
		flags := risk.EvaluateAll(deals, byID, time.Now().UTC(), thresholds)
		return &struct {
			Body []risk.Flag `json:"body"`
		}{Body: flags}, nil
	})
}

func registerAgentActions(api huma.API, b bridge.Bridge) {
	huma.Register(api, huma.Operation{
		OperationID: "agent-action",
		Method:      http.MethodPost,
		Path:        "/agent/actions",
		Summary:     "Execute an agent action",
		Description: "Always returns 200 with a success flag so agents can relay failures to the user.",
	}, func(ctx context.Context, input *struct {
		Body bridge.Request `json:"body"`
	}) (*struct {
		Body bridge.Result `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		res := b.Execute(ctx, input.Body)
		return &struct {
			Body bridge.Result `json:"body"`
		}{Body: res}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail the event log",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		PipelineID string `query:"pipeline_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		events, err := e.Store.LatestEvents(ctx, limit, input.PipelineID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: events}, nil
	})
}
