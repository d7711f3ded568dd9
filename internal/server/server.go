package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"minigames/internal/capacity"
	"minigames/internal/domain"
	"minigames/internal/engine"
	"minigames/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Host     *Host
	BasePath string
	Auth     AuthConfig
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_phase"`
	Message string         `json:"message" example:"command not allowed in current phase"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"phase\":\"execution\"}"`
}

type bodyBytesKey struct{}

// apiError models the error envelope shared by every endpoint.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the minigames API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Host == nil {
		return nil, errors.New("server requires a host")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
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
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && !websocketUpgrade(r) {
				data, _ := io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewBuffer(data))
				r = r.WithContext(context.WithValue(r.Context(), bodyBytesKey{}, data))
			}
			next.ServeHTTP(w, r)
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Host.Repo()))
	hcfg := huma.DefaultConfig("Minigames API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerGames(group, cfg.Host)
	registerSessions(group, cfg.Host)
	registerCommands(group, cfg.Host)
	registerResults(group, cfg.Host)
	registerEvents(group, cfg.Host)
	registerMe(group)
	if cfg.Auth.EnableDevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	router.Get(path.Join(basePath, "sessions/{id}/stream"), newStreamHandler(cfg.Host, logger).ServeHTTP)
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
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", "session not found", nil)
	}
	if errors.Is(err, ErrRateLimited) {
		return newAPIError(http.StatusTooManyRequests, "rate_limited", err.Error(), nil)
	}
	if code := rejectionCode(err); code != "" {
		return newAPIError(http.StatusConflict, code, err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unknown game"),
		strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
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
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// rejectionCode names a command rejection, "" when err is not one.
func rejectionCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, engine.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, engine.ErrUnknownItem):
		return "unknown_item"
	case errors.Is(err, engine.ErrInvalidPhase):
		return "invalid_phase"
	case errors.Is(err, engine.ErrPlanIncomplete):
		return "plan_incomplete"
	case errors.Is(err, engine.ErrUnsupportedCommand):
		return "unsupported_command"
	case errors.Is(err, engine.ErrUnknownCommand):
		return "unknown_command"
	default:
		return ""
	}
}

// commandResponse reports rejections in-band: the command was understood but
// left the game unchanged.
func commandResponse(snap engine.Snapshot, err error) CommandResponse {
	resp := CommandResponse{Applied: err == nil, Snapshot: snap}
	if err == nil {
		return resp
	}
	resp.Reason = err.Error()
	switch code := rejectionCode(err); {
	case code != "":
		resp.Code = code
		resp.Details = rejectionDetails(err)
	case errors.Is(err, ErrRateLimited):
		resp.Code = "rate_limited"
	default:
		resp.Code = "internal_error"
		resp.Reason = "internal error"
	}
	return resp
}

func rejectionDetails(err error) map[string]any {
	var ce *capacity.ExceededError
	if errors.As(err, &ce) {
		return map[string]any{"item_id": ce.ItemID, "resource": ce.Resource, "need": ce.Need, "remaining": ce.Remaining}
	}
	return nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
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
	public := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "games"):          true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
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
    <title>Minigames API Docs</title>
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
      The live stream at sessions/{id}/stream also accepts ?token=.
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

func registerGames(api huma.API, h *Host) {
	huma.Register(api, huma.Operation{
		OperationID: "list-games",
		Method:      http.MethodGet,
		Path:        "/games",
		Summary:     "Playable games and their first round",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body GamesResponse `json:"body"`
	}, error) {
		resp := GamesResponse{Items: []GameInfo{}}
		for _, game := range []domain.Game{domain.GamePlanner, domain.GameTray} {
			p, err := engine.ProgressionFromConfig(h.Config(), game)
			if err != nil {
				return nil, handleError(err)
			}
			resp.Items = append(resp.Items, GameInfo{
				Game:               game,
				Commands:           engine.CommandKinds,
				StartNeedsFullPlan: game == domain.GamePlanner,
				FirstRound:         p.Current(),
			})
		}
		return &struct {
			Body GamesResponse `json:"body"`
		}{Body: resp}, nil
	})
}

type sessionPath struct {
	ID string `path:"id"`
}

func registerSessions(api huma.API, h *Host) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Start a game session",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateSessionRequest `json:"body"`
	}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, snap, err := h.Create(ctx, input.Body.Game, playerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: SessionResponse{Session: s.Info, Live: true, Snapshot: &snap}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List live sessions of the caller",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SessionsResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body SessionsResponse `json:"body"`
		}{Body: SessionsResponse{Items: h.Sessions(playerID)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}",
		Summary:     "Session and current snapshot",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		info, snap, err := h.Session(ctx, input.ID, playerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: SessionResponse{Session: info, Live: snap != nil, Snapshot: snap}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "end-session",
		Method:        http.MethodDelete,
		Path:          "/sessions/{id}",
		Summary:       "End a live session",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*struct{}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.End(ctx, input.ID, playerID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerCommands(api huma.API, h *Host) {
	huma.Register(api, huma.Operation{
		OperationID: "apply-command",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/commands",
		Summary:     "Apply one command",
		Description: "Rejected commands answer 200 with applied=false and leave the game unchanged.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusTooManyRequests},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body CommandRequest `json:"body"`
	}) (*struct {
		Body CommandResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		snap, err := h.Apply(ctx, input.ID, playerID, input.Body.command())
		if err != nil && !engine.IsRejection(err) {
			if errors.Is(err, ErrRateLimited) {
				return nil, newAPIError(http.StatusTooManyRequests, "rate_limited", err.Error(), map[string]any{
					"commands_per_second": h.Config().Server.CommandsPerSecond,
				})
			}
			return nil, handleError(err)
		}
		return &struct {
			Body CommandResponse `json:"body"`
		}{Body: commandResponse(snap, err)}, nil
	})
}

func registerResults(api huma.API, h *Host) {
	huma.Register(api, huma.Operation{
		OperationID: "list-results",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/results",
		Summary:     "Completed rounds of a session",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body ResultsResponse `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.Owns(ctx, input.ID, playerID); err != nil {
			return nil, handleError(err)
		}
		items, err := h.Repo().ListRoundResults(ctx, input.ID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		total, err := h.Repo().SessionEarnings(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.RoundResult{}
		}
		return &struct {
			Body ResultsResponse `json:"body"`
		}{Body: ResultsResponse{Items: items, TotalEarnings: total}}, nil
	})
}

func registerEvents(api huma.API, h *Host) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/events",
		Summary:     "Session journal, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Type   string `query:"type"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		playerID, authErr := playerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.Owns(ctx, input.ID, playerID); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := h.Repo().LatestEvents(ctx, limit+1, cursorID, input.ID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		resp.Items = append(resp.Items, mapEvents(items)...)
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current player",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.PlayerID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{PlayerID: p.PlayerID, Source: p.Source}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		player := strings.TrimSpace(input.Body.PlayerID)
		if player == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "player_id is required", nil)
		}
		token, exp, err := signDevToken(authCfg.JWTSecret, player, time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token, ExpiresAt: exp.UTC().Format(time.RFC3339)}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	return nil
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
