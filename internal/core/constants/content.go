package constants

const (
	ContentTypeHeader      = "Content-Type"
	ContentTypeJSON        = "application/json"
	ContentTypeText        = "text/plain"
	ContentTypeEventStream = "text/event-stream"
	ContentTypePrefixText  = "text/"

	ContentEncodingHeader = "Content-Encoding"
	ContentLengthHeader   = "Content-Length"
)
