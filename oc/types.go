package oc

// Article is the record carried by article_post and article_update calls.
type Article struct {
	ID    []byte `json:"id" msg:"id"`
	Title []byte `json:"title" msg:"title"`
	// the cover media/picture uri
	CoverURI   []byte `json:"cover_uri" msg:"cover_uri"`
	RawContent []byte `json:"raw_content" msg:"raw_content"`
	Content    []byte `json:"content" msg:"content"`
	SectionID  []byte `json:"section_id" msg:"section_id"`
	AuthorID   []byte `json:"author_id" msg:"author_id"`
	Tags       []byte `json:"tags" msg:"tags"`
	ExtLink    []byte `json:"ext_link" msg:"ext_link"`
	SpaceType  uint16 `json:"space_type" msg:"space_type"`
	Status     uint16 `json:"status" msg:"status"`
	// ledger time of the call, supplied by the producer
	CreatedTime uint64 `json:"created_time" msg:"created_time"`
	UpdatedTime uint64 `json:"updated_time" msg:"updated_time"`
	// content hash, refreshed on every processed update
	Hash []byte `json:"hash" msg:"hash"`
}

// ArticlePatch is the record carried by article_update calls. Empty byte
// fields and nil SpaceType/Status keep the current value. A full Article
// encoding decodes as a patch that sets everything.
type ArticlePatch struct {
	ID          []byte  `json:"id" msg:"id"`
	Title       []byte  `json:"title" msg:"title"`
	CoverURI    []byte  `json:"cover_uri" msg:"cover_uri"`
	RawContent  []byte  `json:"raw_content" msg:"raw_content"`
	Content     []byte  `json:"content" msg:"content"`
	SectionID   []byte  `json:"section_id" msg:"section_id"`
	AuthorID    []byte  `json:"author_id" msg:"author_id"`
	Tags        []byte  `json:"tags" msg:"tags"`
	ExtLink     []byte  `json:"ext_link" msg:"ext_link"`
	SpaceType   *uint16 `json:"space_type" msg:"space_type"`
	Status      *uint16 `json:"status" msg:"status"`
	UpdatedTime uint64  `json:"updated_time" msg:"updated_time"`
}

// ArticleRef names an article for article_delete calls.
type ArticleRef struct {
	ID          []byte `json:"id" msg:"id"`
	UpdatedTime uint64 `json:"updated_time" msg:"updated_time"`
}

// IndexEntry is one article id -> content hash pair of the ledger index.
type IndexEntry struct {
	Hash    []byte `json:"hash" msg:"h"`
	Version int64  `json:"version" msg:"v"`
	Sender  string `json:"sender" msg:"s"`
}

// RetryState tracks attempts for the slot a method is stalled on.
type RetryState struct {
	Seq      uint64 `msg:"q"`
	Attempts int    `msg:"a"`
}
