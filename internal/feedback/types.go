// Package feedback defines the request/response types and Kafka event
// schema for the relevance-feedback intake pipeline.
package feedback

import "time"

// SubmitRequest is the JSON body accepted by the feedback HTTP endpoint.
// DocIDs lists the documents the caller judged relevant for the query.
type SubmitRequest struct {
	Query          string   `json:"query"`
	DocIDs         []string `json:"doc_ids"`
	IdempotencyKey string   `json:"idempotency_key"`
}

// SubmitResponse is returned to the caller after a submission is accepted.
type SubmitResponse struct {
	FeedbackID string `json:"feedback_id"`
	QueryKey   string `json:"query_key"`
	Status     string `json:"status"`
}

// Event is the Kafka message payload produced after a submission is
// persisted. The offline expansion jobs fold these judgments into the
// next term computation for the query.
type Event struct {
	FeedbackID  string    `json:"feedback_id"`
	Query       string    `json:"query"`
	QueryKey    string    `json:"query_key"`
	DocIDs      []string  `json:"doc_ids"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Submission is one stored feedback row, as returned by the history
// endpoint.
type Submission struct {
	FeedbackID  string    `json:"feedback_id"`
	Query       string    `json:"query"`
	QueryKey    string    `json:"query_key"`
	DocIDs      []string  `json:"doc_ids"`
	SubmittedAt time.Time `json:"submitted_at"`
}
