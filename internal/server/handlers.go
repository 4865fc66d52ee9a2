package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/tariff-sync/internal/model"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": s.now().UTC().Format(time.RFC3339)})
}

func (s *Server) getDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.svc.GetAllDates(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(dates), "dates": dates})
}

func (s *Server) getLatest(w http.ResponseWriter, r *http.Request) {
	date, err := s.svc.GetLatestDate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if date == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "No data"})
		return
	}
	data, err := s.svc.GetByDate(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "count": len(data), "data": data})
}

func (s *Server) getAll(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.GetAllSorted(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(data), "data": data})
}

func (s *Server) getRange(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("startDate")
	end := r.URL.Query().Get("endDate")
	if start == "" || end == "" {
		writeError(w, model.Errorf(model.KindInvalidInput, "range", "startDate and endDate required"))
		return
	}
	data, err := s.svc.GetByRange(r.Context(), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"startDate": start, "endDate": end, "count": len(data), "data": data})
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.GetSnapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(data), "data": data})
}

func (s *Server) getRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, model.Errorf(model.KindInvalidInput, "runs", "invalid limit %q", v))
			return
		}
		limit = n
	}
	runs, err := s.svc.SyncRuns(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(runs), "runs": runs})
}

func (s *Server) getByDate(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	data, err := s.svc.GetByDate(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "count": len(data), "data": data})
}

func (s *Server) save(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if err := model.ValidateDate(date); err != nil {
		writeError(w, err)
		return
	}

	var items []model.TariffItem
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		writeError(w, model.Errorf(model.KindInvalidInput, "save", "body must be a JSON array of tariff items: %v", err))
		return
	}

	count, err := s.svc.SaveTariffData(r.Context(), items, date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Saved", "count": count, "date": date})
}

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	date := model.Today(s.now(), s.loc)
	count, err := s.svc.FetchAndPersist(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Manual sync complete", "count": count, "date": date})
}

func (s *Server) triggerExport(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.ExportSnapshot(r.Context(), s.dests)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Export complete",
		"succeeded": report.Succeeded(),
		"failed":    report.Failed(),
		"results":   report.Results,
	})
}
