package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"

	"dealdesk/api/internal/auth"
	"dealdesk/api/internal/config"
	"dealdesk/api/internal/deal"
	"dealdesk/api/internal/export"
	"dealdesk/api/internal/metrics"
	"dealdesk/api/internal/rbac"
	"dealdesk/api/internal/search"
	"dealdesk/api/internal/util"
)

type HTTPServer struct {
	service      *Service
	tokenSecret  []byte
	defaultActor string
	corsOrigins  []string
	validate     *validator.Validate
}

func NewHTTPServer(service *Service, cfg config.Config) *HTTPServer {
	return &HTTPServer{
		service:      service,
		tokenSecret:  []byte(cfg.TokenSecret),
		defaultActor: cfg.DefaultActor,
		corsOrigins:  cfg.CORSOrigins,
		validate:     newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/", s.handle)

	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
	})
	return s.withMiddleware(c.Handler(mux))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	actor, err := s.resolveActor(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rec, ok := w.(*statusRecorder); ok {
		rec.actor = actor.ID
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		if !s.allow(w, actor, rbac.ActionRead) {
			return
		}
		s.handleSearch(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 4 && parts[1] == "properties" && parts[3] == "versions" {
		s.handleProperty(w, r, actor, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	} else if count, err := s.service.VersionCount(ctx); err == nil {
		checks["database"] = map[string]any{"status": "ok", "versions": count}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := search.Query{
		Text:       strings.TrimSpace(query.Get("q")),
		PropertyID: strings.TrimSpace(query.Get("propertyId")),
		LatestOnly: query.Get("latest") == "true",
		Limit:      20,
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil && limit > 0 {
		q.Limit = min(limit, 100)
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil && offset > 0 {
		q.Offset = offset
	}
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), q))
}

// handleProperty serves /api/properties/{propertyId}/versions[/{version}[/...]].
func (s *HTTPServer) handleProperty(w http.ResponseWriter, r *http.Request, actor auth.Actor, parts []string) {
	propertyID := parts[2]
	ctx := r.Context()

	if len(parts) == 4 && r.Method == http.MethodGet {
		if !s.allow(w, actor, rbac.ActionRead) {
			return
		}
		versions, err := s.service.ListVersions(ctx, propertyID)
		respond(w, http.StatusOK, versions, err)
		return
	}
	if len(parts) < 5 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	version := parts[4]

	if len(parts) == 5 {
		switch r.Method {
		case http.MethodGet:
			if !s.allow(w, actor, rbac.ActionRead) {
				return
			}
			snap, err := s.service.GetVersion(ctx, propertyID, version)
			respond(w, http.StatusOK, snap, err)
		case http.MethodPut:
			if !s.allow(w, actor, rbac.ActionWrite) {
				return
			}
			var body SaveVersionInput
			if !s.decodeAndValidate(w, r, &body) {
				return
			}
			snap, err := s.service.SaveCurrentVersion(ctx, actor.ID, propertyID, version, body)
			respond(w, http.StatusOK, snap, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch {
	case len(parts) == 6 && parts[5] == "audit-logs" && r.Method == http.MethodGet:
		if !s.allow(w, actor, rbac.ActionRead) {
			return
		}
		entries, err := s.service.ListAudit(ctx, propertyID, version)
		respond(w, http.StatusOK, entries, err)

	case len(parts) == 6 && parts[5] == "history" && r.Method == http.MethodGet:
		if !s.allow(w, actor, rbac.ActionRead) {
			return
		}
		limit := 50
		if parsed, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && parsed > 0 {
			limit = parsed
		}
		commits, err := s.service.History(propertyID, version, limit)
		respond(w, http.StatusOK, map[string]any{"commits": commits}, err)

	case len(parts) == 6 && parts[5] == "archive" && r.Method == http.MethodGet:
		if !s.allow(w, actor, rbac.ActionRead) {
			return
		}
		snap, err := s.service.ArchivedVersion(ctx, propertyID, version)
		respond(w, http.StatusOK, snap, err)

	case len(parts) == 6 && parts[5] == "save-as" && r.Method == http.MethodPost:
		if !s.allow(w, actor, rbac.ActionWrite) {
			return
		}
		var body SaveAsInput
		if !s.decodeAndValidate(w, r, &body) {
			return
		}
		snap, err := s.service.SaveAsNextVersion(ctx, actor.ID, propertyID, version, body)
		respond(w, http.StatusCreated, snap, err)

	case len(parts) == 6 && parts[5] == "export" && r.Method == http.MethodGet:
		if !s.allow(w, actor, rbac.ActionExport) {
			return
		}
		s.handleExport(w, r, propertyID, version)

	case (len(parts) == 6 || len(parts) == 7) && (parts[5] == "brokers" || parts[5] == "tenants"):
		if !s.allow(w, actor, rbac.ActionWrite) {
			return
		}
		s.handleRoster(w, r, actor, propertyID, version, parts)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// handleRoster serves create, update and soft delete for brokers and tenants.
func (s *HTTPServer) handleRoster(w http.ResponseWriter, r *http.Request, actor auth.Actor, propertyID, version string, parts []string) {
	ctx := r.Context()
	expectedRevision, err := parseExpectedRevision(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	collection := parts[5]
	entityID := ""
	if len(parts) == 7 {
		entityID = parts[6]
	}

	var snap deal.Snapshot
	switch {
	case entityID == "" && r.Method == http.MethodPost && collection == "brokers":
		var body deal.BrokerInput
		if !s.decodeAndValidate(w, r, &body) {
			return
		}
		snap, err = s.service.CreateBroker(ctx, actor.ID, propertyID, version, expectedRevision, body)
		respond(w, http.StatusCreated, snap, err)
	case entityID == "" && r.Method == http.MethodPost && collection == "tenants":
		var body deal.TenantInput
		if !s.decodeAndValidate(w, r, &body) {
			return
		}
		snap, err = s.service.CreateTenant(ctx, actor.ID, propertyID, version, expectedRevision, body)
		respond(w, http.StatusCreated, snap, err)
	case entityID != "" && r.Method == http.MethodPut && collection == "brokers":
		var body deal.BrokerPatch
		if !s.decodeAndValidate(w, r, &body) {
			return
		}
		snap, err = s.service.UpdateBroker(ctx, actor.ID, propertyID, version, entityID, expectedRevision, body)
		respond(w, http.StatusOK, snap, err)
	case entityID != "" && r.Method == http.MethodPut && collection == "tenants":
		var body deal.TenantPatch
		if !s.decodeAndValidate(w, r, &body) {
			return
		}
		snap, err = s.service.UpdateTenant(ctx, actor.ID, propertyID, version, entityID, expectedRevision, body)
		respond(w, http.StatusOK, snap, err)
	case entityID != "" && r.Method == http.MethodDelete && collection == "brokers":
		snap, err = s.service.SoftDeleteBroker(ctx, actor.ID, propertyID, version, entityID, expectedRevision)
		respond(w, http.StatusOK, snap, err)
	case entityID != "" && r.Method == http.MethodDelete && collection == "tenants":
		snap, err = s.service.SoftDeleteTenant(ctx, actor.ID, propertyID, version, entityID, expectedRevision)
		respond(w, http.StatusOK, snap, err)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, propertyID, version string) {
	format, err := export.ParseFormat(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	result, err := s.service.Export(r.Context(), export.Request{
		PropertyID: propertyID,
		Version:    version,
		Format:     format,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// resolveActor reads the bearer token. Requests without one act as the
// configured default actor with analyst rights.
func (s *HTTPServer) resolveActor(r *http.Request) (auth.Actor, error) {
	if actor, ok := auth.ActorFromContext(r.Context()); ok {
		return actor, nil
	}
	token := bearerToken(r)
	if token == "" {
		return auth.Actor{ID: s.defaultActor, Role: string(rbac.RoleAnalyst)}, nil
	}
	claims, err := auth.ParseToken(s.tokenSecret, token)
	if err != nil {
		return auth.Actor{}, err
	}
	return auth.Actor{ID: claims.Subject, Role: string(rbac.Normalize(claims.Role))}, nil
}

func (s *HTTPServer) allow(w http.ResponseWriter, actor auth.Actor, action rbac.Action) bool {
	if rbac.Can(rbac.Normalize(actor.Role), action) {
		return true
	}
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"action": action, "role": actor.Role})
	return false
}

func (s *HTTPServer) decodeAndValidate(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return false
	}
	if err := s.validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := make([]map[string]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				details = append(details, map[string]string{"field": fe.Namespace(), "rule": fe.Tag()})
			}
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Request body failed validation", details)
			return false
		}
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return false
	}
	return true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)
		writer.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(writer, r)

		slog.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
			"actor", writer.actor,
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
	actor  string
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func respond(w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, status, payload)
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "code", code, "error", err)
	}
	writeError(w, status, code, message, details)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func parseExpectedRevision(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("expectedRevision"))
	if raw == "" {
		return 0, errors.New("expectedRevision query parameter is required")
	}
	revision, err := strconv.Atoi(raw)
	if err != nil || revision < 0 {
		return 0, errors.New("expectedRevision must be a non-negative integer")
	}
	return revision, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
