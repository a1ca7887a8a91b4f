package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/patelatwork/REVIBEFIT-sub001/internal/analytics"
)

// parseDay разбирает дату YYYY-MM-DD или момент RFC 3339. Для даты endOfDay сдвигает результат
// на начало следующих суток, чтобы дата вошла в окно целиком.
func parseDay(s string, endOfDay bool) (time.Time, bool) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1)
		}
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// RevenueReport строит отчёт о выручке за окно from..to.
func (h *Handler) RevenueReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, ok := parseDay(q.Get("from"), false)
	if !ok {
		badRequest(w, "from must be YYYY-MM-DD or RFC 3339")
		return
	}
	to, ok := parseDay(q.Get("to"), true)
	if !ok {
		badRequest(w, "to must be YYYY-MM-DD or RFC 3339")
		return
	}

	topN := 0
	if v := q.Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			badRequest(w, "top must be a positive integer")
			return
		}
		topN = n
	}

	report, err := h.service.RevenueReport(r.Context(), from, to, analytics.Metric(q.Get("metric")), topN)
	if err != nil {
		h.writeServiceError(w, "revenue report", err)
		return
	}

	writeJSON(w, http.StatusOK, newReportResponse(report))
}

// LatestReport возвращает последний отчёт, построенный по расписанию.
func (h *Handler) LatestReport(w http.ResponseWriter, r *http.Request) {
	report := h.service.LatestReport()
	if report == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, newReportResponse(report))
}
