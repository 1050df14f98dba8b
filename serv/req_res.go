package serv

import (
	"encoding/json"
	"net/http"
)

// ReqCredentials carries inline credentials in the request body
type ReqCredentials struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

// ReqTransactionItem is one query or statement of a request transaction.
// Exactly one of Query and Statement must be present; the presence of
// the field, not its content, discriminates the two shapes on the wire.
type ReqTransactionItem struct {
	Query       *string           `json:"query,omitempty"`
	Statement   *string           `json:"statement,omitempty"`
	NoFail      bool              `json:"noFail,omitempty"`
	Values      json.RawMessage   `json:"values,omitempty"`
	ValuesBatch []json.RawMessage `json:"valuesBatch,omitempty"`
}

// Request is the body of a POST to a database endpoint
type Request struct {
	Credentials *ReqCredentials      `json:"credentials,omitempty"`
	Transaction []ReqTransactionItem `json:"transaction"`
}

// ResponseItem is the outcome of one transaction item. At most one of
// ResultSet, RowsUpdated and RowsUpdatedBatch is present.
type ResponseItem struct {
	Success          bool             `json:"success"`
	Error            string           `json:"error,omitempty"`
	ResultSet        []map[string]any `json:"resultSet,omitempty"`
	RowsUpdated      *int64           `json:"rowsUpdated,omitempty"`
	RowsUpdatedBatch []int64          `json:"rowsUpdatedBatch,omitempty"`
}

// Response is the envelope returned by every endpoint. On success Results
// is set; on failure ReqIdx points at the offending item (-1 for errors
// that are not tied to an item) and Message carries the error text.
type Response struct {
	Results []ResponseItem `json:"results,omitempty"`
	ReqIdx  *int           `json:"reqIdx,omitempty"`
	Message string         `json:"message,omitempty"`

	StatusCode int  `json:"-"`
	Success    bool `json:"-"`
}

// newOKResponse builds a 200 envelope with per-item results
func newOKResponse(results []ResponseItem) *Response {
	if results == nil {
		results = []ResponseItem{}
	}
	return &Response{
		Results:    results,
		StatusCode: http.StatusOK,
		Success:    true,
	}
}

// newErrResponse builds an error envelope with the given HTTP status
func newErrResponse(statusCode, reqIdx int, message string) *Response {
	return &Response{
		ReqIdx:     &reqIdx,
		Message:    message,
		StatusCode: statusCode,
	}
}

// write serializes the response with its status code
func (res *Response) write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.StatusCode)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
	}
}
