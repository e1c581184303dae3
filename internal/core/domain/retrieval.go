package domain

type RetrievedDocument struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	SourcePath string    `json:"source_path"`
	ChunkType  ChunkType `json:"chunk_type"`
	Score      float64   `json:"score"`
}

// RetrievalPlan is never empty: a non-decomposable request plans to itself.
type RetrievalPlan struct {
	Request    string   `json:"request"`
	SubQueries []string `json:"sub_queries"`
	Fallback   bool     `json:"fallback,omitempty"`
}

func SingleQueryPlan(request string) RetrievalPlan {
	return RetrievalPlan{
		Request:    request,
		SubQueries: []string{request},
		Fallback:   true,
	}
}

func (p RetrievalPlan) IsDecomposed() bool {
	return len(p.SubQueries) > 1
}

// ContextSet holds retrieved documents unique by content, in first-seen order.
type ContextSet struct {
	Documents []RetrievedDocument `json:"documents"`
}

func (c ContextSet) Len() int {
	return len(c.Documents)
}

func (c ContextSet) Empty() bool {
	return len(c.Documents) == 0
}
