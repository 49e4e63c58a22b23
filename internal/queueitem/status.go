package queueitem

// Status is the derived, single-source-of-truth projection of a queue item's
// lifecycle timestamps. It is never stored — see Item.Status.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusSubmitted Status = "submitted"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusHasError  Status = "error"
)

// ReportType selects which remote endpoint a queue item's payload should be
// submitted to. It replaces the original implementation's dispatch on the
// payload's Python class name with an explicit tag, per the "dynamic payload
// polymorphism" design note.
type ReportType string

const (
	ReportRouteAnalysis  ReportType = "RouteAnalysis"
	ReportAreaAnalysis   ReportType = "AreaAnalysis"
	ReportTrafficDensity ReportType = "TrafficDensity"
)
