package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/execgate/execgate/domain/cachekey"
	"github.com/execgate/execgate/domain/gateway"
	"github.com/execgate/execgate/domain/plan"
	"github.com/execgate/execgate/ports"
)

// errorBody is the JSON shape of an error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GetExecutions serves paged execution history for a workflow instance,
// mediated by the tenant's plan policy.
//
// Query parameters: instance_id (required), workflow_id, status, limit,
// cursor, and force_refresh to skip the fresh-cache read.
func (h *Handler) GetExecutions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	instanceID := q.Get("instance_id")
	if instanceID == "" {
		writeErrorResponse(w, gateway.ErrorResponse{
			Status:  http.StatusBadRequest,
			Code:    "missing_instance_id",
			Message: "instance_id query parameter is required",
		})
		return
	}

	// Upstream parameter names differ from the query surface.
	params := cachekey.Params{
		"workflowId": q.Get("workflow_id"),
		"status":     q.Get("status"),
		"limit":      q.Get("limit"),
		"cursor":     q.Get("cursor"),
	}
	forceRefresh := parseBool(q.Get("force_refresh"))

	result, err := h.executions.GetExecutions(r.Context(), id, instanceID, params, forceRefresh)
	if err != nil {
		h.observeRequest(id, gateway.ResponseFor(err).Code, time.Since(start))
		h.writeServiceError(w, r, id, err)
		return
	}
	h.observeRequest(id, "success", time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", cacheState(result))
	if result.Age > 0 {
		w.Header().Set("Age", strconv.Itoa(int(result.Age.Seconds())))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Payload); err != nil {
		h.logger.Error().Err(err).Msg("failed to write response body")
	}
}

// InvalidateCache drops the cached response for one instance/parameter
// combination. The next read fetches from the instance.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	instanceID := q.Get("instance_id")
	if instanceID == "" {
		writeErrorResponse(w, gateway.ErrorResponse{
			Status:  http.StatusBadRequest,
			Code:    "missing_instance_id",
			Message: "instance_id query parameter is required",
		})
		return
	}

	params := cachekey.Params{
		"workflowId": q.Get("workflow_id"),
		"status":     q.Get("status"),
		"limit":      q.Get("limit"),
		"cursor":     q.Get("cursor"),
	}

	if err := h.executions.Invalidate(r.Context(), instanceID, params); err != nil {
		h.logger.Error().Err(err).Str("tenant_id", id.TenantID).Msg("cache invalidation failed")
		writeErrorResponse(w, gateway.RespInternal)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// quotaStatusResponse is the JSON shape of the quota read model.
type quotaStatusResponse struct {
	Tier       string                    `json:"tier"`
	Activities map[string]activityStatus `json:"activities"`
}

type activityStatus struct {
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	Unlimited bool `json:"unlimited"`
}

// QuotaStatus reports today's usage against each activity budget.
func (h *Handler) QuotaStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	statuses, err := h.executions.QuotaStatus(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, id, err)
		return
	}

	resp := quotaStatusResponse{
		Tier:       string(id.Tier),
		Activities: make(map[string]activityStatus, len(statuses)),
	}
	for activity, st := range statuses {
		resp.Activities[string(activity)] = activityStatus{
			Used:      st.Used,
			Limit:     st.Limit,
			Remaining: st.Remaining,
			Unlimited: st.Unlimited,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// identity extracts the caller identity from the trusted edge headers.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (gateway.Identity, bool) {
	tenantID := r.Header.Get(HeaderTenantID)
	if tenantID == "" {
		writeErrorResponse(w, gateway.RespMissingIdentity)
		return gateway.Identity{}, false
	}
	return gateway.Identity{
		TenantID: tenantID,
		Tier:     plan.Tier(r.Header.Get(HeaderTier)),
		Tester:   parseBool(r.Header.Get(HeaderTester)),
	}, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, id gateway.Identity, err error) {
	resp := gateway.ResponseFor(err)

	var rl *gateway.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rl.RetryAfter)))
	}

	event := h.logger.Warn()
	if resp.Status >= 500 {
		event = h.logger.Error()
	}
	event.
		Err(err).
		Str("tenant_id", id.TenantID).
		Str("tier", string(id.Tier)).
		Str("error_code", resp.Code).
		Int("status", resp.Status).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("request denied")

	if errors.Is(err, ports.ErrInstanceNotFound) {
		writeErrorResponse(w, gateway.ErrorResponse{
			Status:  http.StatusNotFound,
			Code:    "instance_not_found",
			Message: "Workflow instance is not registered",
		})
		return
	}

	writeErrorResponse(w, resp)
}

func (h *Handler) observeRequest(id gateway.Identity, outcome string, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	h.metrics.RequestsTotal.WithLabelValues(string(id.Tier), outcome).Inc()
	h.metrics.RequestDuration.WithLabelValues(string(id.Tier)).Observe(elapsed.Seconds())
}

func cacheState(result gateway.Result) string {
	switch {
	case result.Stale:
		return "stale"
	case result.CacheHit:
		return "hit"
	default:
		return "miss"
	}
}

// retryAfterSeconds rounds up so clients never retry early.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func writeErrorResponse(w http.ResponseWriter, resp gateway.ErrorResponse) {
	writeJSON(w, resp.Status, errorBody{Error: errorDetail{
		Code:    resp.Code,
		Message: resp.Message,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
