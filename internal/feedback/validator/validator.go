// Package validator checks feedback submissions against the configured
// limits and returns per-field error details.
package validator

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/config"
)

const (
	defaultMaxQueryLength = 512
	defaultMaxDocIDs      = 100
	maxDocIDLength        = 255
	maxIdempotencyKeyLen  = 255
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// Validator enforces the feedback intake limits.
type Validator struct {
	maxQueryLength int
	maxDocIDs      int
}

// New creates a Validator from config, filling zero limits with defaults.
func New(cfg config.FeedbackConfig) *Validator {
	v := &Validator{
		maxQueryLength: cfg.MaxQueryLength,
		maxDocIDs:      cfg.MaxDocIDs,
	}
	if v.maxQueryLength <= 0 {
		v.maxQueryLength = defaultMaxQueryLength
	}
	if v.maxDocIDs <= 0 {
		v.maxDocIDs = defaultMaxDocIDs
	}
	return v
}

// Validate checks the query, document IDs, and idempotency key of a
// submission and returns a ValidationError listing every failing field.
func (v *Validator) Validate(req *feedback.SubmitRequest) error {
	errs := make(map[string]string)

	query := strings.TrimSpace(req.Query)
	if query == "" {
		errs["query"] = "query is required"
	} else if len(query) > v.maxQueryLength {
		errs["query"] = fmt.Sprintf("query must be at most %d characters", v.maxQueryLength)
	}

	if len(req.DocIDs) == 0 {
		errs["doc_ids"] = "at least one document id is required"
	} else if len(req.DocIDs) > v.maxDocIDs {
		errs["doc_ids"] = fmt.Sprintf("at most %d document ids are allowed", v.maxDocIDs)
	} else {
		seen := make(map[string]struct{}, len(req.DocIDs))
		for i, id := range req.DocIDs {
			id = strings.TrimSpace(id)
			if id == "" {
				errs["doc_ids"] = fmt.Sprintf("doc_ids[%d] is empty", i)
				break
			}
			if len(id) > maxDocIDLength {
				errs["doc_ids"] = fmt.Sprintf("doc_ids[%d] must be at most %d characters", i, maxDocIDLength)
				break
			}
			if _, dup := seen[id]; dup {
				errs["doc_ids"] = fmt.Sprintf("doc_ids[%d] is a duplicate", i)
				break
			}
			seen[id] = struct{}{}
		}
	}

	if len(req.IdempotencyKey) > maxIdempotencyKeyLen {
		errs["idempotency_key"] = fmt.Sprintf("idempotency key must be at most %d characters", maxIdempotencyKeyLen)
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
