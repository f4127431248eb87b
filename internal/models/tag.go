package models

import "encoding/json"

// DefaultTagColour is assigned to tags registered without a colour.
const DefaultTagColour = "#cccccc"

// Tag is a registered tag. ID is the lowercase tag name.
type Tag struct {
	ID     string `json:"id"`
	Colour string `json:"colour"`
	Usage  int    `json:"usage"`
}

// Setting is a key/value pair from the settings collection.
type Setting struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}
