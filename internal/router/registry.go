package router

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/pterm/pterm"

	"github.com/thushan/llamatap/internal/core/constants"
	"github.com/thushan/llamatap/internal/logger"
)

type RouteInfo struct {
	Handler     http.HandlerFunc
	Description string
	Method      string
	Path        string
	Order       int
}

// RouteRegistry dispatches on exact method and path. Anything unmatched gets a
// JSON 404, including a known path hit with the wrong method.
type RouteRegistry struct {
	routes   map[string]RouteInfo
	logger   *logger.StyledLogger
	orderSeq int
}

func NewRouteRegistry(log *logger.StyledLogger) *RouteRegistry {
	return &RouteRegistry{
		routes: make(map[string]RouteInfo),
		logger: log,
	}
}

func routeKey(method, path string) string {
	return method + " " + path
}

func (r *RouteRegistry) Register(method, path string, handler http.HandlerFunc, description string) {
	r.routes[routeKey(method, path)] = RouteInfo{
		Handler:     handler,
		Description: description,
		Method:      method,
		Path:        path,
		Order:       r.orderSeq,
	}
	r.orderSeq++
}

func (r *RouteRegistry) Lookup(method, path string) (RouteInfo, bool) {
	info, ok := r.routes[routeKey(method, path)]
	return info, ok
}

func (r *RouteRegistry) Routes() []RouteInfo {
	entries := make([]RouteInfo, 0, len(r.routes))
	for _, info := range r.routes {
		entries = append(entries, info)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Order < entries[j].Order
	})
	return entries
}

// Handler returns the dispatcher and prints the route table once
func (r *RouteRegistry) Handler() http.Handler {
	r.logRoutesTable()
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if info, ok := r.Lookup(req.Method, req.URL.Path); ok {
			info.Handler(w, req)
			return
		}
		NotFound(w, req)
	})
}

var notFoundBody = []byte(`{"error":"Not found"}`)

func NotFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write(notFoundBody)
}

func (r *RouteRegistry) logRoutesTable() {
	entries := r.Routes()
	if len(entries) == 0 || r.logger == nil {
		return
	}

	tableData := [][]string{
		{"ROUTE", "METHOD", "DESCRIPTION"},
	}
	for _, entry := range entries {
		tableData = append(tableData, []string{entry.Path, entry.Method, entry.Description})
	}

	r.logger.InfoWithCount("Registered web routes", len(entries))
	tableString, _ := pterm.DefaultTable.WithHasHeader().WithData(tableData).Srender()
	fmt.Print(tableString)
}
