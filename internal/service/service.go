// Package service contains the business rules of the application.
//
// The layering is the usual one:
//
//	Handler (HTTP)  → parses requests, writes responses
//	Service         → validates input, enforces ownership, orchestrates
//	Repository      → reads and writes records
//
// Services accept plain Go values (never *http.Request) and return
// *apperror.AppError values; the handler package maps those kinds to status
// codes. Every dependency is an interface or a small concrete helper injected
// through a New function, so tests can pass hand-written fakes.
//
// Secondary side effects (view counters, comment counters, email dispatch)
// are best effort: a failure is logged and the primary operation still
// succeeds. Counter drift is repaired by PostService.ReconcileCounters.
package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/sakif/thoughts/internal/repository"
)

// Listing limits.
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// Minimum id lengths accepted from path parameters.
const (
	PostIDMinLength    = 32
	CommentIDMinLength = 12
)

// PageQuery is a listing request as it arrives from a client. Zero values
// select the defaults.
type PageQuery struct {
	Search string
	Page   int
	Limit  int
}

// normalize clamps the query and converts it into repository options.
func (q PageQuery) normalize() (repository.ListOptions, int, int) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return repository.ListOptions{
		Search: q.Search,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}, page, limit
}

// Pagination is the navigation block attached to every listing response.
// PreviousPage and NextPage are nil on the first and last page.
type Pagination struct {
	TotalPages   int  `json:"totalPages"`
	CurrentPage  int  `json:"currentPage"`
	PreviousPage *int `json:"previousPage"`
	NextPage     *int `json:"nextPage"`
}

// NewPagination computes the pagination block for page over total records.
func NewPagination(total int64, page, limit int) Pagination {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))

	p := Pagination{TotalPages: totalPages, CurrentPage: page}
	if page > 1 {
		prev := page - 1
		p.PreviousPage = &prev
	}
	if page+1 <= totalPages {
		next := page + 1
		p.NextPage = &next
	}
	return p
}

// Page is one page of a listing together with the total match count.
type Page[T any] struct {
	Items      []T
	Total      int64
	Pagination Pagination
}

func newPage[T any](items []T, total int64, page, limit int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Items:      items,
		Total:      total,
		Pagination: NewPagination(total, page, limit),
	}
}

// randomHex returns n random bytes hex encoded (2n characters).
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
