package server

import (
	"net/http"
	"strings"
)

// Route is the per-request classification result.
type Route int

const (
	RouteSPA Route = iota
	RouteAPI
	RouteStaticAsset
)

func (r Route) String() string {
	switch r {
	case RouteAPI:
		return "api"
	case RouteStaticAsset:
		return "static_asset"
	default:
		return "spa"
	}
}

// staticPrefixes are never proxied and never answered with the SPA shell.
var staticPrefixes = []string{"assets/", "static/"}

// apiPrefixes are backend route prefixes. Adding a backend route is a
// change to this list only.
var apiPrefixes = []string{
	"status", "api/", "admin/", "teleop/", "dataset/", "training/", "ai-control/",
	"files/", "update/", "torque/", "ws/", "video/", "frames/", "cameras/",
	"recording/", "joints/", "move/", "calibrate/", "gravity/", "robot/",
}

var bodyMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

type rule struct {
	name  string
	route Route
	match func(method, accept, path string) bool
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{"static prefix", RouteStaticAsset, func(_, _, p string) bool {
		return p == "favicon.ico" || hasAnyPrefix(p, staticPrefixes)
	}},
	{"mutating method", RouteAPI, func(m, _, _ string) bool { return bodyMethods[m] }},
	{"json accept", RouteAPI, func(_, a, _ string) bool { return strings.Contains(a, "application/json") }},
	{"backend prefix", RouteAPI, func(_, _, p string) bool { return hasAnyPrefix(p, apiPrefixes) }},
}

// Classify decides how a request is served from its method, Accept header
// and path (without the leading slash).
func Classify(method, accept, path string) Route {
	for _, r := range rules {
		if r.match(method, accept, path) {
			return r.route
		}
	}
	return RouteSPA
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
