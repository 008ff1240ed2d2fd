package domain

import (
	resdomain "bizdash/internal/modules/resources/domain"
	"bizdash/internal/modules/selection"
)

// SelectCommand sets one selection slot; a nil Ref resets it.
type SelectCommand struct {
	Scope string         `json:"scope"`
	Ref   *selection.Ref `json:"ref"`
}

// ResetCommand clears one slot, or all of them when Scope is empty.
type ResetCommand struct {
	Scope string `json:"scope,omitempty"`
}

// PageCommand sets paging and filters for a view.
type PageCommand struct {
	View  string               `json:"view"`
	Query resdomain.PagedQuery `json:"query"`
}

type RefetchCommand struct {
	View string `json:"view"`
}

// DialogCommand opens a dialog; an empty Mode closes it.
type DialogCommand struct {
	Mode   string         `json:"mode"`
	Entity *selection.Ref `json:"entity,omitempty"`
}
