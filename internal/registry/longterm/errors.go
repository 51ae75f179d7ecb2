package longterm

import "errors"

// ErrNotFound indicates no record matched (agent_id, message_id) within the
// partition. Callers turn this into a 404-equivalent; it is not a failure.
var ErrNotFound = errors.New("long-term record not found")

// ErrImmutableCategory is returned when an update targets an append-only
// partition. Episodic records are never mutated once created.
var ErrImmutableCategory = errors.New("category is append-only")

// ErrAlreadyExists is returned by Create when the partition already holds a
// record with the same (agent_id, message_id). Replicating writers treat it
// as success.
var ErrAlreadyExists = errors.New("long-term record already exists")
