package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/matheus3301/inbox/internal/model"
)

// Page carries pagination metadata from a list envelope.
type Page struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int   `json:"total"`
	HasMore *bool `json:"has_more"`
}

type envelope[T any] struct {
	Data       []T   `json:"data"`
	Items      []T   `json:"items"`
	Pagination *Page `json:"pagination"`
	Page
}

// DecodeList decodes either a bare JSON array or an object envelope with a
// "data" (or "items") array. Pagination metadata is returned when present.
func DecodeList[T any](b []byte) ([]T, Page, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil, Page{}, nil
	}
	if b[0] == '[' {
		var items []T
		if err := json.Unmarshal(b, &items); err != nil {
			return nil, Page{}, fmt.Errorf("decode list: %w", err)
		}
		return items, Page{}, nil
	}
	var env envelope[T]
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, Page{}, fmt.Errorf("decode list envelope: %w", err)
	}
	items := env.Data
	if items == nil {
		items = env.Items
	}
	page := env.Page
	if env.Pagination != nil {
		page = *env.Pagination
	}
	return items, page, nil
}

// ParseMessagePage builds a message page from raw items and returns it with
// the number of items that failed to normalize. HasMore falls back to a full
// page heuristic when the envelope does not say.
func ParseMessagePage(items []RawMessage, meta Page, page, limit int, d Defaults) (model.MessagePage, int) {
	res := model.MessagePage{Page: page, Total: meta.Total}
	skipped := 0
	for _, raw := range items {
		m, err := ParseMessage(raw, d)
		if err != nil {
			skipped++
			continue
		}
		res.Messages = append(res.Messages, m)
	}
	switch {
	case meta.HasMore != nil:
		res.HasMore = *meta.HasMore
	case meta.Total > 0 && limit > 0:
		res.HasMore = page*limit < meta.Total
	default:
		res.HasMore = limit > 0 && len(items) >= limit
	}
	return res, skipped
}
