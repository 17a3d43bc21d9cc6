package domain

import "sort"

// Request is the decoded form of an Invocation's arguments.
// It is a closed set: APICallRequest or CLICallRequest.
type Request interface {
	isRequest()
}

// APICallRequest is a logical HTTP call against the remote API.
type APICallRequest struct {
	Path   string         `mapstructure:"path"`
	Method string         `mapstructure:"method"`
	Body   any            `mapstructure:"body"`
	Params map[string]any `mapstructure:"params"`
	// Query is Params in the order the client wrote them, when that order is known.
	Query []Param `mapstructure:"-"`
}

// Param is a single query parameter.
type Param struct {
	Key   string
	Value any
}

// CLICallRequest is a single invocation of the external command-line program.
type CLICallRequest struct {
	Command          string `mapstructure:"command"`
	WorkingDirectory string `mapstructure:"working_directory"`
}

func (APICallRequest) isRequest() {}
func (CLICallRequest) isRequest() {}

// QueryParams returns the query parameters in client order.
// Without a known order (Params built in Go) they are sorted by key.
func (r APICallRequest) QueryParams() []Param {
	if len(r.Query) > 0 {
		return r.Query
	}
	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Param, 0, len(keys))
	for _, k := range keys {
		out = append(out, Param{Key: k, Value: r.Params[k]})
	}
	return out
}

// HasBody reports whether the request carries a payload worth sending.
func (r APICallRequest) HasBody() bool {
	return r.Body != nil
}

// APIResult is the normalized outcome of an API call, before it is wrapped in an Envelope.
type APIResult struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Data       any               `json:"data"`
	// ParseError is set when the response claimed JSON but could not be decoded.
	// Data then holds the raw body text.
	ParseError string `json:"parseError,omitempty"`
}

// CLIResult is the normalized outcome of a successful CLI run.
type CLIResult struct {
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
	Success bool   `json:"success"`
}
