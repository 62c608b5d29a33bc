// Package api exposes the HTTP query and rule-management surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Bhavikpatel576/timely/internal/domain"
	"github.com/Bhavikpatel576/timely/internal/persistence"
)

// NextCursorHeader carries the timeline continuation token.
const NextCursorHeader = "X-Next-Cursor"

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger overrides the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, opts ...Option) *Handler {
	h := &Handler{service: service, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts every endpoint under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", h.summary)
		r.Get("/apps", h.apps)
		r.Get("/apps/{name}/details", h.appDetails)
		r.Get("/timeline", h.timeline)
		r.Get("/productivity", h.productivity)
		r.Get("/trends", h.trends)
		r.Get("/focus", h.focus)
		r.Get("/current", h.current)
		r.Get("/categories", h.categories)

		r.Get("/rules", h.listRules)
		r.Post("/rules", h.upsertRule)
		r.Get("/rules/resolve", h.resolveRule)
		r.Put("/rules/{id}", h.updateRule)
		r.Delete("/rules/{id}", h.deleteRule)

		r.Post("/classify", h.classify)
	})
	r.Get("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) period(r *http.Request) domain.Period {
	q := r.URL.Query()
	return h.service.Period(q.Get("from"), q.Get("to"))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	groupBy := domain.ParseGroupBy(r.URL.Query().Get("groupBy"))
	summary, err := h.service.Summary(r.Context(), h.period(r), groupBy)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) apps(w http.ResponseWriter, r *http.Request) {
	by := domain.ParseGroupBy(r.URL.Query().Get("by"))
	rows, err := h.service.Apps(r.Context(), h.period(r), by, queryInt(r, "limit"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) appDetails(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sessions, err := h.service.AppDetails(r.Context(), h.period(r), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AppDetailsResponse{App: name, Sessions: NewEventViews(sessions)})
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	events, next, err := h.service.Timeline(r.Context(), h.period(r), cursor, queryInt(r, "limit"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if next != nil {
		w.Header().Set(NextCursorHeader, persistence.EncodeCursor(next))
	}
	writeJSON(w, http.StatusOK, NewEventViews(events))
}

func (h *Handler) productivity(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Productivity(r.Context(), h.period(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) trends(w http.ResponseWriter, r *http.Request) {
	iv := domain.ParseInterval(r.URL.Query().Get("interval"))
	buckets, err := h.service.Trends(r.Context(), h.period(r), iv)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (h *Handler) focus(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Focus(r.Context(), h.period(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	cur, err := h.service.Current(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	// a nil pointer encodes as JSON null
	writeJSON(w, http.StatusOK, cur)
}

func (h *Handler) categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]CategoryView, 0, len(cats))
	for _, c := range cats {
		out = append(out, NewCategoryView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListRules(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]RuleView, 0, len(rules))
	for _, rule := range rules {
		out = append(out, NewRuleView(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) upsertRule(w http.ResponseWriter, r *http.Request) {
	var req UpsertRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "unable to parse body")
		return
	}
	res, err := h.service.UpsertRule(r.Context(), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, MutationResponse{Success: true, Updated: &res.Affected, RuleID: res.RuleID})
}

func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	var req UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "unable to parse body")
		return
	}
	if req.CategoryID == nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "category_id: required")
		return
	}
	affected, err := h.service.UpdateRuleCategory(r.Context(), id, *req.CategoryID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Success: true, Updated: &affected})
}

func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	affected, err := h.service.DeleteRule(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Success: true, Recategorized: &affected})
}

func (h *Handler) resolveRule(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.service.Resolve(r.Context(), optional(q.Get("app")), optional(q.Get("title")), optional(q.Get("url_domain")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ResolutionView{RuleID: res.RuleID, CategoryID: res.CategoryID, Category: res.Category})
}

func (h *Handler) classify(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.ClassifyPending(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Success: true, Classified: &n})
}

// fail maps a domain error onto the {type, detail} error payload.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		if errors.Is(err, context.Canceled) {
			return
		}
		writeError(w, status, code, "internal error")
		return
	}
	writeError(w, status, code, err.Error())
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, domain.ErrRuleNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrBuiltinRule):
		return http.StatusBadRequest, "invalid_operation"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

func ruleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "id: must be a positive integer")
		return 0, false
	}
	return id, true
}

// queryInt returns 0 when the parameter is absent or not a number, letting the
// service apply its default.
func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func optional(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

// UpsertRuleRequest is the payload for POST /api/rules. App carries the
// pattern for every field; Pattern is accepted as an alias.
type UpsertRuleRequest struct {
	App        string `json:"app"`
	Pattern    string `json:"pattern"`
	CategoryID *int64 `json:"category_id"`
	Field      string `json:"field"`
}

func (r UpsertRuleRequest) input() domain.UpsertRuleInput {
	in := domain.UpsertRuleInput{Field: r.Field, Pattern: r.App}
	if in.Pattern == "" {
		in.Pattern = r.Pattern
	}
	if r.CategoryID != nil {
		in.CategoryID = *r.CategoryID
	}
	return in
}

// UpdateRuleRequest is the payload for PUT /api/rules/{id}.
type UpdateRuleRequest struct {
	CategoryID *int64 `json:"category_id"`
}

// MutationResponse reports a committed rule change.
type MutationResponse struct {
	Success       bool   `json:"success"`
	Updated       *int64 `json:"updated,omitempty"`
	Recategorized *int64 `json:"recategorized,omitempty"`
	Classified    *int64 `json:"classified,omitempty"`
	RuleID        int64  `json:"rule_id,omitempty"`
}

// EventView is the wire form of a timeline entry or session.
type EventView struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Duration  float64   `json:"duration"`
	App       *string   `json:"app"`
	Title     *string   `json:"title"`
	URL       *string   `json:"url"`
	URLDomain *string   `json:"url_domain,omitempty"`
	Category  string    `json:"category"`
	IsAFK     bool      `json:"is_afk"`
}

// AppDetailsResponse lists one app's sessions.
type AppDetailsResponse struct {
	App      string      `json:"app"`
	Sessions []EventView `json:"sessions"`
}

// RuleView is the wire form of a rule.
type RuleView struct {
	ID           int64  `json:"id"`
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category_name"`
	Field        string `json:"field"`
	Pattern      string `json:"pattern"`
	IsBuiltin    bool   `json:"is_builtin"`
	Priority     int    `json:"priority"`
}

// CategoryView is the wire form of a catalog entry.
type CategoryView struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	ParentID          *int64 `json:"parent_id"`
	ProductivityScore int    `json:"productivity_score"`
	Color             string `json:"color,omitempty"`
}

// ResolutionView answers GET /api/rules/resolve.
type ResolutionView struct {
	RuleID     *int64 `json:"rule_id,omitempty"`
	CategoryID *int64 `json:"category_id,omitempty"`
	Category   string `json:"category"`
}

// NewEventViews converts domain events to their wire form.
func NewEventViews(events []domain.EventView) []EventView {
	out := make([]EventView, 0, len(events))
	for _, e := range events {
		out = append(out, EventView{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Duration:  e.Duration,
			App:       e.App,
			Title:     e.Title,
			URL:       e.URL,
			URLDomain: e.URLDomain,
			Category:  e.Category,
			IsAFK:     e.IsAFK,
		})
	}
	return out
}

// NewRuleView converts a domain rule to its wire form.
func NewRuleView(r domain.RuleView) RuleView {
	return RuleView{
		ID:           r.ID,
		CategoryID:   r.CategoryID,
		CategoryName: r.CategoryName,
		Field:        r.Field.String(),
		Pattern:      r.Pattern,
		IsBuiltin:    r.IsBuiltin,
		Priority:     r.Priority,
	}
}

// NewCategoryView converts a catalog entry to its wire form.
func NewCategoryView(c domain.CategoryView) CategoryView {
	return CategoryView{
		ID:                c.ID,
		Name:              c.Name,
		ParentID:          c.ParentID,
		ProductivityScore: c.ProductivityScore,
		Color:             c.Color,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
