package packdb

import "time"

// PoisonReport is left behind when a compensating rollback gives up. The record it names
// may not hold its pre-operation state and needs an operator.
type PoisonReport struct {
	Type        string    `msgpack:"type" json:"type"`
	ID          int       `msgpack:"id" json:"id"`
	Reason      string    `msgpack:"reason" json:"reason"`
	OperationID UUID      `msgpack:"op" json:"operation_id"`
	Timestamp   time.Time `msgpack:"ts" json:"timestamp"`
}
