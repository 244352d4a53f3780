package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"showcatalog/internal/schema"
)

func (h *Handler) listShows(w http.ResponseWriter, r *http.Request) {
	params, err := parseListParams(r.URL.Query())
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.catalog.ListShows(r.Context(), params.filters, params.sortBy, params.sortDirection, params.page)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, h.registry.Export(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

type summaryResponse struct {
	Success bool             `json:"success"`
	Results []map[string]any `json:"results"`
	Groups  int              `json:"groups"`
}

func (h *Handler) summarizeShows(w http.ResponseWriter, r *http.Request) {
	params := parseSummaryParams(r.URL.Query())

	counts, groups, err := h.catalog.SummarizeShows(r.Context(), params.groupBy, params.filterColumn, params.filterValue)
	if err != nil {
		writeError(w, r, err)
		return
	}

	results := make([]map[string]any, 0, len(counts))
	for _, c := range counts {
		row := make(map[string]any, len(c.Groups)+1)
		for name, value := range c.Groups {
			if t, ok := value.(time.Time); ok {
				value = t.Format(schema.DateLayout)
			}
			row[name] = value
		}
		row["count"] = c.Count
		results = append(results, row)
	}
	writeJSON(w, http.StatusOK, summaryResponse{Success: true, Results: results, Groups: groups})
}

func (h *Handler) upsertShow(w http.ResponseWriter, r *http.Request) {
	payload, status, err := h.decodePayload(w, r)
	if err != nil {
		writeMessage(w, status, err.Error())
		return
	}

	rec, created, err := h.catalog.UpsertShow(r.Context(), payload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status = http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, h.registry.Export(rec))
}

// decodePayload reads one JSON object. Numbers stay json.Number so integer
// columns never pass through float64.
func (h *Handler) decodePayload(w http.ResponseWriter, r *http.Request) (map[string]any, int, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, errors.New("request body too large")
		}
		return nil, http.StatusBadRequest, errors.New("request body must be a JSON object")
	}
	if payload == nil {
		return nil, http.StatusBadRequest, errors.New("request body must be a JSON object")
	}
	if dec.More() {
		return nil, http.StatusBadRequest, errors.New("request body must contain a single JSON object")
	}
	return payload, 0, nil
}
