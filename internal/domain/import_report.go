package domain

// ImportReport is the caller-visible result of one import run. Counts cover
// every committed chunk; Errors is bounded by the configured cap, so
// ErrorsTruncated tells the caller whether detail was dropped.
type ImportReport struct {
	TotalRows       int         `json:"totalRows"`
	Inserted        int         `json:"inserted"`
	Updated         int         `json:"updated"`
	Skipped         int         `json:"skipped"`
	ChunksCommitted int         `json:"chunksCommitted"`
	Errors          []*RowError `json:"errors,omitempty"`
	ErrorsTruncated bool        `json:"errorsTruncated,omitempty"`
}
