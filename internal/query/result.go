package query

// Pagination describes the window a result page was cut from. PageNumber is
// 1-indexed.
type Pagination struct {
	PageNumber int64 `json:"pageNumber"`
	PageSize   int64 `json:"pageSize"`
	Total      int64 `json:"total"`
}

// PaginatedResult carries one page of data plus its pagination envelope.
type PaginatedResult[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// IsLastPage reports whether no further page exists: either this page came
// back short, or the window already covers the total.
func (r PaginatedResult[T]) IsLastPage() bool {
	return int64(len(r.Data)) < r.Pagination.PageSize ||
		r.Pagination.PageNumber*r.Pagination.PageSize >= r.Pagination.Total
}

// Map converts a page of documents into a page of typed values, preserving
// the pagination envelope.
func Map[T, U any](r PaginatedResult[T], fn func(T) U) PaginatedResult[U] {
	out := PaginatedResult[U]{Pagination: r.Pagination}
	out.Data = make([]U, len(r.Data))
	for i, v := range r.Data {
		out.Data[i] = fn(v)
	}
	return out
}
