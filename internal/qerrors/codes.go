// Package qerrors provides the structured error taxonomy for the query
// engine: six kinds, each carrying category, severity and an HTTP-status
// hint for the (out-of-scope) HTTP surface to consult.
package qerrors

// Kind classifies an engine error into one of the six taxonomy buckets.
type Kind string

const (
	// KindParse covers DSL lexing/parsing failures.
	KindParse Kind = "ParseError"
	// KindPercentilePredicate covers malformed or unsatisfiable percentile predicates.
	KindPercentilePredicate Kind = "PercentilePredicateError"
	// KindColumnSearch covers column-name index failures, including unimplemented modes.
	KindColumnSearch Kind = "ColumnSearchError"
	// KindIndexing covers index build/swap/recreate failures.
	KindIndexing Kind = "IndexingError"
	// KindTransientBackend covers recoverable full-text backend failures (degrade, don't fail).
	KindTransientBackend Kind = "TransientBackendError"
	// KindUnknown covers anything that doesn't fit the above.
	KindUnknown Kind = "Unknown"
)

// Category mirrors the coarse classification used for logging and metrics.
type Category string

const (
	CategoryValidation Category = "VALIDATION"
	CategoryIndex      Category = "INDEX"
	CategoryNetwork    Category = "NETWORK"
	CategoryInternal   Category = "INTERNAL"
)

// Severity mirrors the logging-level mapping for a given error.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityFatal   Severity = "FATAL"
)

// httpStatus is the HTTP-equivalent status hint for each kind, consulted by
// the (interface-only) HTTP surface described in spec.md §6. TransientBackend
// has no hint because it is never surfaced as a request failure: the engine
// degrades instead.
var httpStatus = map[Kind]int{
	KindParse:               400,
	KindPercentilePredicate: 400,
	KindColumnSearch:        400,
	KindIndexing:            500,
	KindTransientBackend:    0,
	KindUnknown:             500,
}

func categoryForKind(k Kind) Category {
	switch k {
	case KindParse, KindPercentilePredicate, KindColumnSearch:
		return CategoryValidation
	case KindIndexing:
		return CategoryIndex
	case KindTransientBackend:
		return CategoryNetwork
	default:
		return CategoryInternal
	}
}

func severityForKind(k Kind) Severity {
	switch k {
	case KindTransientBackend:
		return SeverityWarning
	case KindUnknown:
		return SeverityFatal
	default:
		return SeverityError
	}
}

func retryableForKind(k Kind) bool {
	return k == KindTransientBackend
}
