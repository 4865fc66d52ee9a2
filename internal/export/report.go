package export

import (
	"encoding/json"

	"github.com/sells-group/tariff-sync/internal/model"
)

// Result is the outcome of exporting to one destination.
type Result struct {
	Destination model.SheetDestination
	Rows        int
	Err         error
}

// MarshalJSON renders Err as a string.
func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Destination model.SheetDestination `json:"destination"`
		Rows        int                    `json:"rows"`
		Error       string                 `json:"error,omitempty"`
	}{Destination: r.Destination, Rows: r.Rows}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Report collects per-destination results in destination order.
type Report struct {
	Results []Result `json:"results"`
}

// Failed returns the number of destinations that failed.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Succeeded returns the number of destinations written successfully.
func (r *Report) Succeeded() int {
	return len(r.Results) - r.Failed()
}
