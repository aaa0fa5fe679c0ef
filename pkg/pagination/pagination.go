// Package pagination reads limit/offset windows from list requests and wraps
// list results with totals and navigation links.
package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a limit/offset window over a listing.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads the limit and offset query parameters. Missing or
// unparsable values fall back to DefaultLimit and 0; limit is capped at
// MaxLimit.
func FromContext(c echo.Context) Params {
	return Params{
		Limit:  clamp(queryInt(c, "limit"), DefaultLimit, MaxLimit),
		Offset: max(queryInt(c, "offset"), 0),
	}
}

func queryInt(c echo.Context, name string) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return n
}

func clamp(limit, fallback, ceiling int) int {
	switch {
	case limit <= 0:
		return fallback
	case limit > ceiling:
		return ceiling
	}
	return limit
}

// Response is one page of a listing.
type Response[T any] struct {
	Data    []T    `json:"data"`
	Total   int    `json:"total"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	HasMore bool   `json:"has_more"`
	Links   []Link `json:"links,omitempty"`
}

// NewResponse wraps items as the page p of a listing with total rows. A nil
// items slice is rendered as an empty array.
func NewResponse[T any](items []T, total int, p Params) *Response[T] {
	if items == nil {
		items = []T{}
	}
	return &Response[T]{
		Data:    items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
}

// WithLinks sets self/next/previous links relative to u. Query parameters
// other than limit and offset are carried over.
func (r *Response[T]) WithLinks(u *url.URL) *Response[T] {
	p := Params{Limit: r.Limit, Offset: r.Offset}
	r.Links = p.Links(u, r.Total)
	return r
}

func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset never goes below zero.
func (p Params) PreviousOffset() int {
	return max(p.Offset-p.Limit, 0)
}

// Links builds the navigation links for this window of a listing at u.
func (p Params) Links(u *url.URL, total int) []Link {
	links := []Link{{Relation: "self", URL: p.pageURL(u, p.Offset)}}
	if p.HasNext(total) {
		links = append(links, Link{Relation: "next", URL: p.pageURL(u, p.NextOffset())})
	}
	if p.HasPrevious() {
		links = append(links, Link{Relation: "previous", URL: p.pageURL(u, p.PreviousOffset())})
	}
	return links
}

// Link is a navigation link.
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

func (p Params) pageURL(u *url.URL, offset int) string {
	q := u.Query()
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(p.Limit))
	return u.Path + "?" + q.Encode()
}
