// Package routing holds the workflow's decision points. Every predicate is a
// pure function of the accumulated state.
package routing

import "github.com/energy-monitor/server/internal/workflow/state"

// Route names the next node to run.
type Route string

const (
	Parser       Route = "parser"
	Classifier   Route = "classifier"
	Extractor    Route = "extractor"
	StoreWriter  Route = "store_writer"
	QueryHandler Route = "query_handler"
	Responder    Route = "responder"
)

// Routes lists every node in execution order of the longest path.
var Routes = []Route{Parser, Classifier, Extractor, StoreWriter, QueryHandler, Responder}

// String returns the node name.
func (r Route) String() string {
	return string(r)
}

// AfterParse picks the node following the parser: an attachment goes to the
// classifier, a text-only message to the query handler, anything else
// straight to the responder.
func AfterParse(s state.State) Route {
	switch {
	case s.HasAttachment:
		return Classifier
	case s.IsQuery:
		return QueryHandler
	default:
		return Responder
	}
}

// AfterClassify sends target-subject images to the extractor.
func AfterClassify(s state.State) Route {
	if s.IsTargetSubject {
		return Extractor
	}
	return Responder
}

// Targets returns the routes a decision point may choose, for graph wiring.
func Targets(routes ...Route) map[string]bool {
	m := make(map[string]bool, len(routes))
	for _, r := range routes {
		m[string(r)] = true
	}
	return m
}
