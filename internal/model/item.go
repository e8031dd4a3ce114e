package model

import "fmt"

// ItemReference is the stable identity of one catalog row. It is comparable
// and usable as a map key; the ledger and the vector-store payloads are both
// keyed by it.
type ItemReference struct {
	Provider Provider  `json:"provider"`
	Sheet    SheetName `json:"sheet_name"`
	ID       int       `json:"id"`
}

func (r ItemReference) String() string {
	return fmt.Sprintf("%s/%s/%d", r.Provider, r.Sheet, r.ID)
}

// ItemOutput carries the eleven output cells rendered for one populated
// provider block of a merge-table row. MatchType is nil for the cluster
// anchor's own cell.
type ItemOutput struct {
	MatchType     *MatchType
	CategoryID    string
	CategoryName  string
	IsInventory   bool
	ID            int
	Code          string
	Name          string
	Description   string
	IntacctGLGrp  string
	UnitOfMeasure string
	Cost          float64
}
