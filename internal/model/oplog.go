package model

// OpType enumerates the kinds of mutation an oplog entry can carry.
type OpType string

const (
	OpUpsert   OpType = "upsert"
	OpDelete   OpType = "delete"
	OpSettings OpType = "settings"
	OpClear    OpType = "clear"
)

// OpLogEntry is a single durable record in a tenant's oplog. Seq is strictly
// monotonic per tenant; Payload is op-type specific JSON (a Document for
// upsert, {"id": ...} for delete, a settings snapshot for settings, nothing
// for clear).
type OpLogEntry struct {
	Seq         uint64                 `json:"seq"`
	TimestampMs uint64                 `json:"timestamp_ms"`
	NodeID      string                 `json:"node_id"`
	TenantID    string                 `json:"tenant_id"`
	OpType      OpType                 `json:"op_type"`
	Payload     map[string]interface{} `json:"payload"`
}

// DocID extracts the document ID an oplog entry's payload refers to, for
// upsert and delete ops. Returns "" for settings/clear ops.
func (e OpLogEntry) DocID() string {
	switch e.OpType {
	case OpUpsert:
		if id, ok := e.Payload["id"].(string); ok {
			return id
		}
	case OpDelete:
		if id, ok := e.Payload["id"].(string); ok {
			return id
		}
	}
	return ""
}

// AsDocument reconstructs the Document carried by an upsert entry's payload.
func (e OpLogEntry) AsDocument() (Document, bool) {
	if e.OpType != OpUpsert {
		return Document{}, false
	}
	id, _ := e.Payload["id"].(string)
	fields, _ := e.Payload["fields"].(map[string]interface{})
	if fields == nil {
		fields = map[string]interface{}{}
	}
	return Document{ID: id, Fields: fields}, true
}
