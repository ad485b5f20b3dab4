package util

import (
	"fmt"
	"net/http"

	"github.com/filecrate/filecrate-api/pkg/file_api/models"
)

// SetPaginationHeaders writes the pagination metadata as response headers and
// RFC 8288 Link relations.
func SetPaginationHeaders(r *http.Request, setHeader func(key, value string), p models.Pagination) {
	setHeader("X-Total-Count", fmt.Sprintf("%d", p.TotalRecords))
	setHeader("X-Total-Pages", fmt.Sprintf("%d", p.TotalPages))
	setHeader("X-Current-Page", fmt.Sprintf("%d", p.CurrentPage))
	setHeader("X-Per-Page", fmt.Sprintf("%d", p.RecordsPerPage))

	link := ""
	if p.Next != nil {
		link += fmt.Sprintf(`<%s?page=%d&perPage=%d>; rel="next"`, r.URL.Path, *p.Next, p.RecordsPerPage)
	}
	if p.Previous != nil {
		if link != "" {
			link += ", "
		}
		link += fmt.Sprintf(`<%s?page=%d&perPage=%d>; rel="prev"`, r.URL.Path, *p.Previous, p.RecordsPerPage)
	}
	if link != "" {
		setHeader("Link", link)
	}
}
