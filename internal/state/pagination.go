package state

import "github.com/atvirokodosprendimai/holocron/internal/domain"

// Pagination derives navigation from the current page and total result count.
type Pagination struct {
	Page       int `json:"page"`
	TotalCount int `json:"total_count"`
}

func (p Pagination) CanGoPrev() bool {
	return p.Page > 1
}

func (p Pagination) CanGoNext() bool {
	return p.Page*domain.PageSize < p.TotalCount
}

func (p Pagination) PageCount() int {
	if p.TotalCount <= 0 {
		return 0
	}
	return (p.TotalCount + domain.PageSize - 1) / domain.PageSize
}
