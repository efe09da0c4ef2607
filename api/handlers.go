/*
handlers.go - HTTP API handlers for subscription tracking

PURPOSE:
  Exposes the catalog and the projection engine via REST API. Handles HTTP
  request/response and JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Subscriptions:
    GET    /api/subscriptions                  List (?active=&category=&sort=)
    POST   /api/subscriptions                  Create
    GET    /api/subscriptions/{id}             Get one
    PUT    /api/subscriptions/{id}             Partial update
    DELETE /api/subscriptions/{id}             Delete
    POST   /api/subscriptions/{id}/cancel      Mark inactive
    GET    /api/subscriptions/{id}/renewals    Renewal dates (?from=&to=)

  Projections:
    GET    /api/calendar                       Month view (?year=&month=)
    GET    /api/summary                        Counts and normalized cost
    GET    /api/reminders                      Reminders (?days=)

  Data:
    GET    /api/export                         Export file
    POST   /api/import                         Import file (?replace=)
    POST   /api/seed                           Replace everything with samples
    POST   /api/reset                          Remove everything

  Renewal runs:
    GET    /api/renewal-runs                   History (?limit=)
    POST   /api/renewal-runs                   Run the advancer now

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call the catalog (cache + store) or the projector
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Subscription not found
  - 409: Conflict (duplicate id)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/subtrack/billing"
	"github.com/warp/subtrack/catalog"
	"github.com/warp/subtrack/factory"
	"github.com/warp/subtrack/logging"
)

const (
	defaultReminderDays = 30
	defaultRunLimit     = 20
	maxBodyBytes        = 10 << 20
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Catalog   *catalog.Catalog
	Runs      billing.RunStore
	Scheduler *RenewalScheduler
	Metrics   *Metrics

	logger zerolog.Logger
}

// NewHandler creates a handler. The scheduler shares the catalog and run
// store; metrics may be nil.
func NewHandler(cat *catalog.Catalog, runs billing.RunStore, metrics *Metrics) *Handler {
	return &Handler{
		Catalog:   cat,
		Runs:      runs,
		Scheduler: NewRenewalScheduler(cat, runs, metrics),
		Metrics:   metrics,
		logger:    logging.Component("api"),
	}
}

// =============================================================================
// SUBSCRIPTION HANDLERS
// =============================================================================

// ListSubscriptions returns subscriptions, optionally filtered and sorted.
// sort=group returns category sections instead of a flat list.
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := billing.Filter{Category: q.Get("category")}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid active flag", err)
			return
		}
		filter.ActiveOnly = active
	}

	grouped := q.Get("sort") == "group"
	by := billing.SortNext
	if !grouped {
		var err error
		if by, err = billing.ParseSortOption(q.Get("sort")); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid sort option", err)
			return
		}
	}

	subs, err := h.Catalog.List(r.Context(), filter, by)
	if err != nil {
		h.fail(w, "Failed to list subscriptions", err)
		return
	}

	if grouped {
		groups := billing.GroupByCategory(subs)
		dtos := make([]CategoryGroupDTO, 0, len(groups))
		for _, g := range groups {
			dtos = append(dtos, CategoryGroupDTO{Category: g.Category, Subscriptions: toSubscriptionDTOs(g.Subscriptions)})
		}
		writeJSON(w, http.StatusOK, dtos)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionDTOs(subs))
}

// GetSubscription returns a single subscription.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.Catalog.Get(r.Context(), subscriptionID(r))
	if err != nil {
		h.fail(w, "Failed to get subscription", err)
		return
	}
	writeJSON(w, http.StatusOK, factory.FromSubscription(sub))
}

// CreateSubscription creates a subscription from the factory wire format.
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sub, err := factory.ParseSubscription(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid subscription", err)
		return
	}

	created, err := h.Catalog.Create(r.Context(), sub)
	if err != nil {
		h.fail(w, "Failed to create subscription", err)
		return
	}
	writeJSON(w, http.StatusCreated, factory.FromSubscription(created))
}

// UpdateSubscription applies a partial update.
func (h *Handler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	var req UpdateSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	patch, err := req.Patch()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid subscription", err)
		return
	}

	updated, err := h.Catalog.Update(r.Context(), subscriptionID(r), patch)
	if err != nil {
		h.fail(w, "Failed to update subscription", err)
		return
	}
	writeJSON(w, http.StatusOK, factory.FromSubscription(updated))
}

// CancelSubscription marks a subscription inactive. Its history is kept.
func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	cancelled, err := h.Catalog.Cancel(r.Context(), subscriptionID(r))
	if err != nil {
		h.fail(w, "Failed to cancel subscription", err)
		return
	}
	writeJSON(w, http.StatusOK, factory.FromSubscription(cancelled))
}

// DeleteSubscription removes a subscription.
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.Delete(r.Context(), subscriptionID(r)); err != nil {
		h.fail(w, "Failed to delete subscription", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PROJECTION HANDLERS
// =============================================================================

// GetRenewals lists the renewal dates of one subscription in [from, to].
// Defaults: from = today, to = one year after from.
func (h *Handler) GetRenewals(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from", h.Catalog.Today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := queryDate(r, "to", from.AddMonthsClamped(12))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}

	sub, err := h.Catalog.Get(r.Context(), subscriptionID(r))
	if err != nil {
		h.fail(w, "Failed to get subscription", err)
		return
	}

	projector := h.Catalog.Projector()
	dates, err := projector.Renewals(sub, billing.Window{Start: from, End: to})
	if err != nil {
		h.fail(w, "Failed to project renewals", err)
		return
	}
	h.countProjection("renewals")

	resp := RenewalsResponse{
		SubscriptionID: string(sub.ID),
		Cadence:        sub.Cadence(projector.MonthEnd).String(),
		From:           from.String(),
		To:             to.String(),
		Dates:          make([]string, len(dates)),
		Total:          toMoneyDTO(sub.Price.Mul(decimal.NewFromInt(int64(len(dates))))),
	}
	for i, d := range dates {
		resp.Dates[i] = d.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCalendar returns the month view. Defaults to the current month.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	today := h.Catalog.Today()

	year, err := queryInt(r, "year", today.Year())
	if err != nil || year < 1 || year > 9999 {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	month, err := queryInt(r, "month", int(today.Month()))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "Invalid month (1-12)", err)
		return
	}

	cal, err := h.Catalog.Calendar(r.Context(), year, time.Month(month))
	if err != nil {
		h.fail(w, "Failed to build calendar", err)
		return
	}
	h.countProjection("calendar")
	writeJSON(w, http.StatusOK, toCalendarResponse(cal))
}

// GetSummary returns counts and the normalized monthly/yearly cost.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Catalog.Summary(r.Context())
	if err != nil {
		h.fail(w, "Failed to summarize subscriptions", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}

// GetReminders lists reminders due in the next ?days= days (default 30).
func (h *Handler) GetReminders(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", defaultReminderDays)
	if err != nil || days < 0 || days > 366 {
		writeError(w, http.StatusBadRequest, "Invalid days (0-366)", err)
		return
	}

	reminders, err := h.Catalog.Reminders(r.Context(), billing.NextDays(h.Catalog.Today(), days))
	if err != nil {
		h.fail(w, "Failed to compute reminders", err)
		return
	}
	h.countProjection("reminders")

	dtos := make([]ReminderDTO, 0, len(reminders))
	for _, rem := range reminders {
		dtos = append(dtos, toReminderDTO(rem))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// DATA MANAGEMENT
// =============================================================================

// Export returns every subscription as an export file.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	subs, err := h.Catalog.List(r.Context(), billing.Filter{}, billing.SortName)
	if err != nil {
		h.fail(w, "Failed to export subscriptions", err)
		return
	}
	filename := fmt.Sprintf("subscriptions-%s.json", h.Catalog.Today())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	writeJSON(w, http.StatusOK, factory.Export(subs, time.Now()))
}

// Import stores the subscriptions of an export file atomically.
// ?replace=true removes existing subscriptions first.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	replace := false
	if v := r.URL.Query().Get("replace"); v != "" {
		var err error
		if replace, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid replace flag", err)
			return
		}
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	subs, err := factory.ParseExport(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid import file", err)
		return
	}

	n, err := h.Catalog.Import(r.Context(), subs, replace)
	if err != nil {
		h.fail(w, "Failed to import subscriptions", err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Imported: n})
}

// Seed replaces everything with the demo data set.
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	n, err := h.Catalog.Seed(r.Context(), factory.Samples(h.Catalog.Today()))
	if err != nil {
		h.fail(w, "Failed to seed subscriptions", err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Imported: n})
}

// Reset removes every subscription.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.Reset(r.Context()); err != nil {
		h.fail(w, "Failed to reset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RENEWAL RUNS
// =============================================================================

// ListRenewalRuns returns recent advancer runs, newest first.
func (h *Handler) ListRenewalRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultRunLimit)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	runs, err := h.Runs.ListRenewalRuns(r.Context(), limit)
	if err != nil {
		h.fail(w, "Failed to list renewal runs", err)
		return
	}

	dtos := make([]RenewalRunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRenewalRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TriggerRenewalRun runs the advancer immediately.
func (h *Handler) TriggerRenewalRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Scheduler.RunNow(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", run.ID).Msg("Renewal run failed")
		if run.ID != "" && run.Status == billing.RunFailed {
			writeJSON(w, http.StatusInternalServerError, toRenewalRunDTO(run))
			return
		}
		h.fail(w, "Failed to run renewals", err)
		return
	}
	writeJSON(w, http.StatusOK, toRenewalRunDTO(run))
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Catalog.Store().(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func subscriptionID(r *http.Request) billing.SubscriptionID {
	return billing.SubscriptionID(chi.URLParam(r, "id"))
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, errors.New("empty body")
	}
	return body, nil
}

func decodeJSON(r *http.Request, v any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func queryDate(r *http.Request, key string, def billing.Date) (billing.Date, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return billing.ParseDate(v)
}

func (h *Handler) countProjection(kind string) {
	if h.Metrics != nil {
		h.Metrics.ProjectionsTotal.WithLabelValues(kind).Inc()
	}
}

// fail maps domain errors onto HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	switch {
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Subscription not found", err)
	case billing.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.logger.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
