package cli

// Document is the schema-less record the CLI stores: an id plus the declared fields.
type Document struct {
	ID     int            `json:"id" msgpack:"id"`
	Fields map[string]any `json:"fields" msgpack:"fields"`
}

// GetID returns the document id.
func (d Document) GetID() int {
	return d.ID
}
