package shared

const (
	// DefaultPerPage applies when the caller sends no page size.
	DefaultPerPage = 20
	// MaxPerPage caps list requests.
	MaxPerPage = 100
)

// Page describes one window of a listing.
type Page struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPage clamps the requested window and derives the page count from total.
func NewPage(page, perPage, total int) Page {
	switch {
	case perPage <= 0:
		perPage = DefaultPerPage
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}
	if page <= 0 {
		page = 1
	}
	if total < 0 {
		total = 0
	}
	return Page{Page: page, PerPage: perPage, Total: total, TotalPages: (total + perPage - 1) / perPage}
}

// WithTotal returns the same window with the row count filled in.
func (p Page) WithTotal(total int) Page {
	return NewPage(p.Page, p.PerPage, total)
}

// Offset returns the row offset for the current page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.PerPage
}
