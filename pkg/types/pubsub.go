package types

// PubSubMessage is the transport envelope delivered to Pub/Sub-triggered
// cloud functions.
type PubSubMessage struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// ETLTaskPayload is the business payload of a pipeline run request.
type ETLTaskPayload struct {
	UserID     string   `json:"user_id"`
	DataSource string   `json:"data_source"`
	Stages     []string `json:"stages,omitempty"`  // default: full pipeline
	Streams    []string `json:"streams,omitempty"` // default: all configured streams
}
