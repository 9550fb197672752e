package types

type DataResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type SearchResponse struct {
	Candidates []RetrievalCandidate `json:"candidates"`
}

type StatusResponse struct {
	Backend   string `json:"backend"`
	IndexName string `json:"index_name"`
	Documents int64  `json:"documents"`
}
