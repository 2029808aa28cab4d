package reddit

// Listing is one element of the thread payload: the first listing holds the post,
// the second one its comments.
type Listing struct {
	Kind string      `json:"kind"`
	Data ListingData `json:"data"`
}

type ListingData struct {
	Children []Thing `json:"children"`
}

// Thing is a listing child. Only kind "t1" (comment) is harvested.
type Thing struct {
	Kind string    `json:"kind"`
	Data ThingData `json:"data"`
}

type ThingData struct {
	ID         string  `json:"id"`
	Author     string  `json:"author"`
	Body       string  `json:"body"`
	CreatedUTC float64 `json:"created_utc"`
	Permalink  string  `json:"permalink"`
}
