package domain

// PageInfo is the uniform cursor contract every paginated entity type
// exposes: whether another page exists and the opaque cursor to continue
// from. Cursors are never persisted beyond one pagination run.
type PageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

// NextCursor returns the cursor for the following page, or nil when
// pagination should stop. A page reporting hasNextPage with a nil cursor is
// invalid input and terminates pagination rather than looping forever.
func (p PageInfo) NextCursor() *string {
	if !p.HasNextPage || p.EndCursor == nil {
		return nil
	}
	return p.EndCursor
}
