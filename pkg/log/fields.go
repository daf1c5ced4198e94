package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldRoute     = "route"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldSubject = "subject"

	// Service
	FieldService = "service"

	// gRPC
	FieldGRPCMethod = "grpc_method"
	FieldGRPCCode   = "grpc_code"

	// Command dispatch
	FieldCommand = "command"
	FieldArgc    = "argc"
	FieldTarget  = "target"
	FieldToken   = "token"
	FieldIDKind  = "id_kind"
	FieldID      = "id"

	// Snowflake coordinates
	FieldRegionID = "region_id"
	FieldWorkerID = "worker_id"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
