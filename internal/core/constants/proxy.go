package constants

const (
	HeaderRequestID = "X-Request-Id"
	HeaderUserAgent = "User-Agent"

	PathChatCompletions   = "/chat/completions"
	PathV1ChatCompletions = "/v1/chat/completions"

	DefaultCompletionsPath = "/v1/chat/completions"

	// audit capture tags written in place of a body
	BodyTagBinary        = "<binary-data>"
	BodyTagMalformedJSON = "<malformed-json-data>"

	DefaultCaptureLimit = 1 << 20

	ModelIdentifierSeparator = "/"
)
