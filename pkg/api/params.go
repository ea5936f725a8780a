package api

import (
	"net/http"

	"github.com/platinummonkey/invoicegate/pkg/billing"
	"github.com/platinummonkey/invoicegate/pkg/httputil"
)

// requirePeriod reads mandatory start and end query params, writing a 400 on failure
func requirePeriod(w http.ResponseWriter, r *http.Request) (billing.Period, bool) {
	period, present, ok := parsePeriod(w, r)
	if !ok {
		return billing.Period{}, false
	}
	if !present {
		httputil.WriteBadRequest(w, "query params start and end are required")
		return billing.Period{}, false
	}
	return *period, true
}

// optionalPeriod reads start and end when given; they must come together
func optionalPeriod(w http.ResponseWriter, r *http.Request) (*billing.Period, bool) {
	period, _, ok := parsePeriod(w, r)
	return period, ok
}

func parsePeriod(w http.ResponseWriter, r *http.Request) (*billing.Period, bool, bool) {
	start, hasStart, err := httputil.ParseQueryTime(r, "start")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return nil, false, false
	}
	end, hasEnd, err := httputil.ParseQueryTime(r, "end")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return nil, false, false
	}

	if !hasStart && !hasEnd {
		return nil, false, true
	}
	if hasStart != hasEnd {
		httputil.WriteBadRequest(w, "query params start and end must be given together")
		return nil, false, false
	}

	period := billing.NewPeriod(start, end)
	if err := period.Validate(); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return nil, false, false
	}
	return &period, true, true
}
