package handlers

import (
	"net/http"
	"strconv"
	"time"

	"expense-tracker/internal/log"
	"expense-tracker/internal/models"
)

// StatsCategoryItem represents a category with its spending statistics.
type StatsCategoryItem struct {
	Category   string        `json:"category"`
	Total      models.Amount `json:"total"`
	Count      int           `json:"count"`
	Percentage float64       `json:"percentage"`
}

// StatsResponse is the body of the monthly statistics endpoint.
type StatsResponse struct {
	Year       int                 `json:"year"`
	Month      int                 `json:"month"`
	MonthName  string              `json:"month_name"`
	Total      models.Amount       `json:"total"`
	Categories []StatsCategoryItem `json:"categories"`
}

// Statistics returns the caller's per-category totals for one month, taken
// from the year and month query parameters and defaulting to the current month.
func (h *Handlers) Statistics(w http.ResponseWriter, r *http.Request) {
	who, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	now := time.Now()
	year := now.Year()
	month := int(now.Month())

	if yearStr := r.URL.Query().Get("year"); yearStr != "" {
		if y, err := strconv.Atoi(yearStr); err == nil && y > 0 {
			year = y
		}
	}
	if monthStr := r.URL.Query().Get("month"); monthStr != "" {
		if m, err := strconv.Atoi(monthStr); err == nil && m >= 1 && m <= 12 {
			month = m
		}
	}

	totals, err := h.store.GetCategoryTotalsByMonth(r.Context(), who.UserID, year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var total models.Amount
	for _, ct := range totals {
		total += ct.Total
	}

	items := make([]StatsCategoryItem, 0, len(totals))
	for _, ct := range totals {
		percentage := 0.0
		if total > 0 {
			percentage = float64(ct.Total) / float64(total) * 100
		}
		items = append(items, StatsCategoryItem{
			Category:   ct.Category,
			Total:      ct.Total,
			Count:      ct.Count,
			Percentage: percentage,
		})
	}

	log.FromContext(r.Context()).WithComponent(log.ComponentExpense).DebugContext(r.Context(), "Statistics computed",
		log.FieldOperation, log.OpStats,
		"year", year,
		"month", month,
		"categories", len(items),
	)
	writeJSON(w, http.StatusOK, StatsResponse{
		Year:       year,
		Month:      month,
		MonthName:  time.Month(month).String(),
		Total:      total,
		Categories: items,
	})
}
