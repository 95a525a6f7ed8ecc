package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"DigestAgent/internal/domain"
	"DigestAgent/internal/usecase"
)

const (
	defaultLogLimit = 20
	maxLogLimit     = 200
)

// Handler serves the JSON API.
type Handler struct {
	deps Deps
}

type refreshRequest struct {
	Topics []string `json:"topics"`
	UserID int64    `json:"user_id"`
	Date   string   `json:"date"`
}

type refreshResponse struct {
	Message        string                         `json:"message"`
	Date           string                         `json:"date"`
	Results        []usecase.RefreshRequestStatus `json:"results"`
	RefreshedCount int                            `json:"refreshed_count"`
	SkippedCount   int                            `json:"skipped_count"`
}

// Health processes the /healthz endpoint.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// TriggerRefresh starts background refreshes for the requested topics, or for a user's subscriptions.
func (h *Handler) TriggerRefresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	date, err := h.resolveDate(req.Date)
	if err != nil {
		return err
	}

	topics := req.Topics
	if len(topics) == 0 && req.UserID > 0 {
		if topics, err = h.userTopics(c, req.UserID); err != nil {
			return err
		}
	}
	if len(topics) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no topics to refresh")
	}

	results := h.deps.Refresher.RequestRefresh(c.Request().Context(), topics, date)
	resp := refreshResponse{Date: date, Results: results}
	for _, r := range results {
		if r.Status == usecase.StatusRefreshing {
			resp.RefreshedCount++
		} else {
			resp.SkippedCount++
		}
	}
	resp.Message = fmt.Sprintf("%d topics refreshing, %d skipped", resp.RefreshedCount, resp.SkippedCount)

	return c.JSON(http.StatusAccepted, resp)
}

// RefreshStatus reports lease state for ?topic=..., or for the topics of ?user_id=.
func (h *Handler) RefreshStatus(c echo.Context) error {
	date, err := h.resolveDate(c.QueryParam("date"))
	if err != nil {
		return err
	}

	topics := c.QueryParams()["topic"]
	if len(topics) == 0 {
		if raw := c.QueryParam("user_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid user_id")
			}
			if topics, err = h.userTopics(c, id); err != nil {
				return err
			}
		}
	}

	statuses := make([]usecase.LeaseStatus, 0, len(topics))
	for _, topic := range topics {
		status, err := h.deps.Refresher.GetLeaseStatus(c.Request().Context(), topic, date)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "lease lookup failed").SetInternal(err)
		}
		statuses = append(statuses, status)
	}

	return c.JSON(http.StatusOK, map[string]any{"date": date, "topics": statuses})
}

// Stats counts cached items per topic for ?date=.
func (h *Handler) Stats(c echo.Context) error {
	date, err := h.resolveDate(c.QueryParam("date"))
	if err != nil {
		return err
	}

	counts, err := h.deps.News.CountByTopic(c.Request().Context(), date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "stats unavailable").SetInternal(err)
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return c.JSON(http.StatusOK, map[string]any{"date": date, "total": total, "by_topic": counts})
}

type logView struct {
	ID        int64          `json:"id"`
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// Logs lists recent sweep audit records.
func (h *Handler) Logs(c echo.Context) error {
	if h.deps.Logs == nil {
		return echo.NewHTTPError(http.StatusNotFound, "audit log unavailable")
	}

	limit := defaultLogLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = min(n, maxLogLimit)
	}

	logs, err := h.deps.Logs.RecentSystemLogs(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "logs unavailable").SetInternal(err)
	}

	out := make([]logView, 0, len(logs))
	for _, l := range logs {
		out = append(out, logView{ID: l.ID, Kind: l.Kind, Message: l.Message, Metadata: l.Metadata, CreatedAt: l.CreatedAt})
	}
	return c.JSON(http.StatusOK, map[string]any{"logs": out})
}

func (h *Handler) resolveDate(raw string) (string, error) {
	if raw == "" {
		return h.deps.Now().In(h.deps.Location).Format(domain.DateLayout), nil
	}
	if _, err := time.Parse(domain.DateLayout, raw); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	return raw, nil
}

func (h *Handler) userTopics(c echo.Context, userID int64) ([]string, error) {
	if h.deps.Users == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "user directory unavailable")
	}
	if _, err := h.deps.Users.GetUser(c.Request().Context(), userID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "user lookup failed").SetInternal(err)
	}

	subs, err := h.deps.Users.ActiveSubscriptions(c.Request().Context(), userID)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "subscription lookup failed").SetInternal(err)
	}

	set := map[string]struct{}{}
	for _, sub := range subs {
		set[sub.Topic] = struct{}{}
	}
	topics := make([]string, 0, len(set))
	for topic := range set {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics, nil
}
