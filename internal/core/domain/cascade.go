package domain

// Cascade is returned by repository deletes. It lists the records that were
// removed so the caller can clean up their output directories.
type Cascade struct {
	Project *Project // nil for a card-only delete
	Cards   []Card
}

// DeleteReport describes both phases of a cascading delete
type DeleteReport struct {
	ProjectRemoved bool
	CardsRemoved   []string
	DirsRemoved    []string
	DirsShared     []string // kept because another entity still resolves to them
	FilesErr       error
}

// Complete reports whether both the record and file phases succeeded
func (r *DeleteReport) Complete() bool {
	return r.FilesErr == nil
}
