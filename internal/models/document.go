package models

import (
	"fmt"
	"strings"
)

type Document struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// Metadata is what gets stored next to the document body.
func (d Document) Metadata() map[string]string {
	meta := map[string]string{
		"title": d.Title,
		"text":  d.Text,
	}
	if d.Source != "" {
		meta["source"] = d.Source
	}
	return meta
}

type AddRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

func (r AddRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ValidationError{Field: "text", Message: "text is required"}
	}
	return nil
}

type AddResponse struct {
	Message string     `json:"message"`
	Data    AddRequest `json:"data"`
}

type AddURLRequest struct {
	URL string `json:"url"`
}

func (r AddURLRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return ValidationError{Field: "url", Message: "url is required"}
	}
	return nil
}

type AddURLResponse struct {
	Message string       `json:"message"`
	Data    []AddRequest `json:"data"`
}

// QueryResult mirrors the column-oriented response of Chroma style stores:
// one inner slice per query text.
type QueryResult struct {
	IDs       [][]string            `json:"ids"`
	Documents [][]string            `json:"documents"`
	Metadatas [][]map[string]string `json:"metadatas"`
	Distances [][]float32           `json:"distances"`
}

type Heartbeat struct {
	NanosecondHeartbeat int64 `json:"nanosecond heartbeat"`
}

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
