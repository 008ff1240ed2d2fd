package selection

// Tx stages writes inside Store.Update. Writes apply in call order, so setting a
// parent after its child clears that child again.
type Tx struct {
	store *Store
	next  Snapshot
}

// Set writes the slot; nil resets it. Moving a parent to a different id, or
// clearing it, clears its descendants.
func (tx *Tx) Set(scope Scope, ref *Ref) {
	if ref == nil || ref.ID == "" {
		tx.Reset(scope)
		return
	}
	prev, had := tx.next[scope]
	tx.next[scope] = ref.clone()
	if had && prev.ID != ref.ID {
		tx.clearBelow(scope)
	}
}

func (tx *Tx) Reset(scope Scope) {
	if _, had := tx.next[scope]; !had {
		return
	}
	delete(tx.next, scope)
	tx.clearBelow(scope)
}

// Get reads the staged value.
func (tx *Tx) Get(scope Scope) *Ref {
	return tx.next.Get(scope)
}

func (tx *Tx) clearBelow(scope Scope) {
	for _, child := range tx.store.descendants(scope) {
		delete(tx.next, child)
	}
}

func (tx *Tx) scopes() []Scope {
	out := make([]Scope, 0, len(tx.next))
	for scope := range tx.next {
		out = append(out, scope)
	}
	return out
}
