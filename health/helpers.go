package health

import "time"

func newStatus(component, statusName, message string, healthy bool) Status {
	return Status{
		Component: component,
		Healthy:   healthy,
		Status:    statusName,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy builds a healthy status stamped now.
func NewHealthy(component, message string) Status {
	return newStatus(component, "healthy", message, true)
}

// NewUnhealthy builds an unhealthy status stamped now.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, "unhealthy", message, false)
}

// NewDegraded builds a degraded status stamped now. Degraded counts as not
// healthy but signals the component is still doing useful work.
func NewDegraded(component, message string) Status {
	return newStatus(component, "degraded", message, false)
}

// Aggregate folds sub-statuses into one status using worst-case rules:
// any unhealthy sub-status makes the aggregate unhealthy; otherwise any
// degraded one makes it degraded. The sub-statuses are copied onto the
// result so the /health payload shows the per-component breakdown.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "No sub-components to aggregate")
	}

	var hasUnhealthy, hasDegraded bool
	for _, sub := range subStatuses {
		hasUnhealthy = hasUnhealthy || sub.IsUnhealthy()
		hasDegraded = hasDegraded || sub.IsDegraded()
	}

	var status Status
	switch {
	case hasUnhealthy:
		status = NewUnhealthy(component, "One or more sub-components are unhealthy")
	case hasDegraded:
		status = NewDegraded(component, "One or more sub-components are degraded")
	default:
		status = NewHealthy(component, "All sub-components are healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)
	return status
}
