package constants

type contextKey string

const (
	AppKey       contextKey = "app"
	PoolKey      contextKey = "pool"
	TxKey        contextKey = "tx"
	LoggerKey    contextKey = "logger"
	ParamsKey    contextKey = "params"
	TenantIDKey  contextKey = "tenant_id"
	ActorIDKey   contextKey = "actor_id"
	RequestStart contextKey = "request_start"
)
