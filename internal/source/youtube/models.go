package youtube

// CommentThreadsResponse is one page of the commentThreads.list API.
type CommentThreadsResponse struct {
	NextPageToken string          `json:"nextPageToken"`
	Items         []CommentThread `json:"items"`
}

type CommentThread struct {
	ID      string        `json:"id"`
	Snippet ThreadSnippet `json:"snippet"`
}

type ThreadSnippet struct {
	VideoID         string   `json:"videoId"`
	TopLevelComment *Comment `json:"topLevelComment"`
}

type Comment struct {
	ID      string          `json:"id"`
	Snippet *CommentSnippet `json:"snippet"`
}

type CommentSnippet struct {
	AuthorDisplayName *string `json:"authorDisplayName"`
	TextDisplay       *string `json:"textDisplay"`
	TextOriginal      *string `json:"textOriginal"`
	PublishedAt       string  `json:"publishedAt"`
	UpdatedAt         string  `json:"updatedAt"`
	LikeCount         int     `json:"likeCount"`
	Language          *string `json:"language"`
}
