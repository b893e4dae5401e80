package constants

type contextKey string

const (
	ContextRequestIdKey   contextKey = "request_id"
	ContextRequestTimeKey contextKey = "request_time"
)
