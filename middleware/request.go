// Package middleware defines the request/response model of vector operations
// and the pipeline of middleware wrapped around a backend adapter call.
package middleware

// Operation names a vector operation
type Operation string

const (
	OpUpsert         Operation = "upsert"
	OpQuery          Operation = "query"
	OpFetch          Operation = "fetch"
	OpUpdate         Operation = "update"
	OpDelete         Operation = "delete"
	OpCreateIndex    Operation = "create_index"
	OpDeleteIndex    Operation = "delete_index"
	OpListIndexes    Operation = "list_indexes"
	OpDescribeIndex  Operation = "describe_index"
	OpStats          Operation = "stats"
	OpListNamespaces Operation = "list_namespaces"
	OpHybridSearch   Operation = "hybrid_search"
	OpTextSearch     Operation = "text_search"
)

var writeOps = map[Operation]bool{
	OpUpsert:      true,
	OpUpdate:      true,
	OpDelete:      true,
	OpCreateIndex: true,
	OpDeleteIndex: true,
}

// IsWrite reports whether the operation mutates backend state
func (o Operation) IsWrite() bool {
	return writeOps[o]
}

func (o Operation) String() string {
	return string(o)
}

// Metadata keys written by the built-in middleware
const (
	MetaRequestID  = "request_id"
	MetaRetryCount = "retry_count"
	MetaDryRun     = "dry_run"
	MetaPlan       = "plan"
)

// Request is one operation travelling through the pipeline
type Request struct {
	Operation Operation
	Index     string
	Namespace string
	Params    map[string]any
	Metadata  map[string]any
}

// NewRequest creates a request with initialized maps
func NewRequest(op Operation, index string, params map[string]any) *Request {
	if params == nil {
		params = map[string]any{}
	}
	return &Request{
		Operation: op,
		Index:     index,
		Params:    params,
		Metadata:  map[string]any{},
	}
}

// Param returns a parameter or nil
func (r *Request) Param(key string) any {
	return r.Params[key]
}

// SetMetadata sets a metadata value, allocating the map if needed
func (r *Request) SetMetadata(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata[key] = value
}

// Response carries either Result or Err, plus metadata stamped by middleware
type Response struct {
	Result   any
	Err      error
	Metadata map[string]any
}

// NewResponse creates a successful response
func NewResponse(result any) *Response {
	return &Response{Result: result, Metadata: map[string]any{}}
}

// ErrorResponse creates a failed response
func ErrorResponse(err error) *Response {
	return &Response{Err: err, Metadata: map[string]any{}}
}

// Success reports whether the response carries a result
func (r *Response) Success() bool {
	return r != nil && r.Err == nil
}

// SetMetadata sets a metadata value, allocating the map if needed
func (r *Response) SetMetadata(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata[key] = value
}

// RetryCount returns the retry_count stamped by the Retry middleware
func (r *Response) RetryCount() int {
	if r == nil {
		return 0
	}
	n, _ := r.Metadata[MetaRetryCount].(int)
	return n
}

// DryRun reports whether the response was synthesized by the DryRun middleware
func (r *Response) DryRun() bool {
	if r == nil {
		return false
	}
	v, _ := r.Metadata[MetaDryRun].(bool)
	return v
}

// Outcome folds the two ways a handler can fail into one error
func Outcome(resp *Response, err error) error {
	if err != nil {
		return err
	}
	if resp != nil {
		return resp.Err
	}
	return nil
}
