package jobcore

import "github.com/shopforge/jobcore/id"

// ID is the primary identifier type for all jobcore entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
