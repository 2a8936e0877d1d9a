package models

// BatchItem is one entry of a batch scrape.
type BatchItem struct {
	Kind    RequestKind `json:"kind" binding:"required,oneof=website channel"`
	Target  string      `json:"target" binding:"required"`
	Shape   ShapeName   `json:"shape,omitempty"`
	Options Options     `json:"options"`
}

// ToRequest converts the batch entry into a core request.
func (b BatchItem) ToRequest() ScrapeRequest {
	return ScrapeRequest{Target: b.Target, Kind: b.Kind, Shape: b.Shape, Options: b.Options}
}

// BatchRequest is the payload for POST /api/v1/scrape/batch.
//
// Without WebhookURL the call blocks until every entry finished. With it,
// the batch runs in the background and the results are posted to the URL,
// signed with WebhookSecret when set.
type BatchRequest struct {
	Requests []BatchItem `json:"requests" binding:"required,min=1,max=20,dive"`

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// BatchResponse carries one result per request, in request order.
type BatchResponse struct {
	BatchID   string         `json:"batch_id"`
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Results   []ScrapeResult `json:"results"`
}

// BatchAccepted is the immediate reply to a batch with a webhook.
type BatchAccepted struct {
	BatchID string `json:"batch_id"`
	Status  string `json:"status"` // always "accepted"
	Total   int    `json:"total"`
}
