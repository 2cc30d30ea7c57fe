package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"
	MBreakerTransitions      MetricKey = "circuit_breaker_state_changes_total"
	MDeadLetterRecords       MetricKey = "dead_letter_records_total"
	MNotifications           MetricKey = "notifications_total"
)
