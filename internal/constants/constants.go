package constants

type contextKey string

const (
	// RequestIDKey 請求追蹤ID的context key
	RequestIDKey contextKey = "request_id"
	// ActorKey 請求身份的context key，由 gateway 驗證後帶在 header
	ActorKey contextKey = "actor"
)

const (
	HeaderUserID       = "X-User-Id"
	HeaderCapabilities = "X-User-Capabilities"
)
