// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package system

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an http handler which serves the info as JSON on /sysinfo
// and, if gatherer is not nil, prometheus metrics on /metrics.
func Handler(info *Info, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/sysinfo", func(w http.ResponseWriter, req *http.Request) {
		info.Refresh()
		out, err := json.MarshalIndent(info.Clone(), "", "\t")
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(out)
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
