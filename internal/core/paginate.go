package core

// DefaultPageSize is used when a page size below 1 is requested.
const DefaultPageSize = 10

// PageMeta describes the window returned by Paginate.
type PageMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// Page is one window of records.
type Page struct {
	Items []StudentRecord `json:"items"`
	Meta  PageMeta        `json:"meta"`
}

// TotalPages returns max(1, ceil(total/size)).
func TotalPages(total, size int) int {
	if size < 1 {
		size = DefaultPageSize
	}
	if total <= 0 {
		return 1
	}
	return (total-1)/size + 1
}

// ClampPage clamps page into [1, totalPages].
func ClampPage(page, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

// Paginate slices records into the requested window. The page number is
// clamped before slicing, so a page past the end returns the last page.
// Items is never nil.
func Paginate(records []StudentRecord, page, pageSize int) Page {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	total := len(records)
	totalPages := TotalPages(total, pageSize)
	page = ClampPage(page, totalPages)

	start := (page - 1) * pageSize
	end := min(start+pageSize, total)

	items := make([]StudentRecord, 0, max(end-start, 0))
	if start < end {
		items = append(items, records[start:end]...)
	}

	return Page{
		Items: items,
		Meta: PageMeta{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: totalPages,
		},
	}
}
