package search

// Arguments is a search request.
type Arguments struct {
	Query string `json:"query"`
	// Limit is capped by the engine's maximum; zero or less means the maximum.
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Hit is one ranked match.
type Hit struct {
	FileID        string  `json:"file_id"`
	FileExtension string  `json:"file_extension"`
	Title         string  `json:"title"`
	URI           string  `json:"file_uri"`
	OriginURI     string  `json:"origin_uri,omitempty"`
	Snippet       string  `json:"snippet"`
	Score         float64 `json:"score"`
}

// Name is the file's display name, id plus extension.
func (h Hit) Name() string {
	return h.FileID + h.FileExtension
}

// Result echoes the request with the effective limit.
type Result struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Hits   []Hit  `json:"hits"`
}
