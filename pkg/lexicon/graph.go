package lexicon

import "time"

// TrustedUser is a trust edge as returned by the graph methods.
type TrustedUser struct {
	RecipientDID string     `json:"recipientDid"`
	CreatedAt    time.Time  `json:"createdAt"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty"`
}

// GetTrustedParams are the query parameters of social.spkeasy.graph.getTrusted.
// RecipientDID narrows the listing to one edge; propagation handlers use
// it to re-check a single relationship.
type GetTrustedParams struct {
	AuthorDID    string `json:"authorDid" validate:"required"`
	RecipientDID string `json:"recipientDid,omitempty"`
}

// GetTrustedResponse is the output of social.spkeasy.graph.getTrusted.
type GetTrustedResponse struct {
	Trusted []TrustedUser `json:"trusted"`
}

// AddTrustedRequest is the input of social.spkeasy.graph.addTrusted.
type AddTrustedRequest struct {
	RecipientDID string `json:"recipientDid" validate:"required"`
}

// AddTrustedResponse is the output of social.spkeasy.graph.addTrusted.
type AddTrustedResponse struct {
	Trusted TrustedUser `json:"trusted"`
}

// RemoveTrustedRequest is the input of social.spkeasy.graph.removeTrusted.
type RemoveTrustedRequest struct {
	RecipientDID string `json:"recipientDid" validate:"required"`
}

// BulkAddTrustedRequest is the input of social.spkeasy.graph.bulkAddTrusted.
type BulkAddTrustedRequest struct {
	RecipientDIDs []string `json:"recipientDids" validate:"required,min=1,max=1000,dive,required"`
}

// BulkAddTrustedResponse is the output of social.spkeasy.graph.bulkAddTrusted.
// Added carries only the recipients the call actually created edges for;
// already-trusted recipients are not repeated back.
type BulkAddTrustedResponse struct {
	Added []string `json:"added"`
}

// BulkRemoveTrustedRequest is the input of social.spkeasy.graph.bulkRemoveTrusted.
type BulkRemoveTrustedRequest struct {
	RecipientDIDs []string `json:"recipientDids" validate:"required,min=1,max=1000,dive,required"`
}

// BulkRemoveTrustedResponse is the output of social.spkeasy.graph.bulkRemoveTrusted.
type BulkRemoveTrustedResponse struct {
	Removed []string `json:"removed"`
}
