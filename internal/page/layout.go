package page

import "github.com/Bob-Light1/school-management-system-frontend-sub000/internal/entity"

// Status is the list state of a page.
type Status string

const (
	StatusLoading   Status = "LOADING"
	StatusEmpty     Status = "EMPTY"
	StatusPopulated Status = "POPULATED"
)

// StatusFor derives the page status from the list state.
func StatusFor(s entity.State) Status {
	switch {
	case s.Loading:
		return StatusLoading
	case len(s.Entities) == 0:
		return StatusEmpty
	default:
		return StatusPopulated
	}
}

// Layout is how the list is rendered.
type Layout string

const (
	LayoutCards Layout = "cards"
	LayoutTable Layout = "table"
)

// CardsBreakpoint is the viewport width below which lists render as cards.
const CardsBreakpoint = 900

// LayoutFor picks the list layout for a viewport width. A width of zero or
// less means unknown and renders a table.
func LayoutFor(width int) Layout {
	if width > 0 && width < CardsBreakpoint {
		return LayoutCards
	}
	return LayoutTable
}
