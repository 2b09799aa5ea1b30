// Package models defines core data structures for documents, hits, queries, and fused results.
package models

import "time"

// Document represents a stored document with metadata.
type Document struct {
	ID        string                 `json:"id" db:"id"`
	Text      string                 `json:"text" db:"text"`
	Metadata  map[string]interface{} `json:"metadata" db:"metadata"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}

// DocumentInput is the input for creating or replacing a document.
type DocumentInput struct {
	ID       string                 `json:"id,omitempty"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// IngestRequest adds a batch of texts to both search backends.
type IngestRequest struct {
	Texts        []string                 `json:"texts"`
	MetadataList []map[string]interface{} `json:"metadata_list,omitempty"`
}

// IngestResponse lists the ids assigned to ingested texts, in request order.
type IngestResponse struct {
	IDs []string `json:"ids"`
}
