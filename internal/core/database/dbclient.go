package db

import (
	"github.com/markdave123-py/examvault/internal/core"
)

// DbClient is everything the service needs from Postgres: document metadata,
// job snapshots, users and, with pgvector, the similarity index.
type DbClient interface {
	core.MetadataSink
	core.JobRepository
	core.UserStore
	core.VectorStore

	Close() error
}

var _ DbClient = (*DatabaseClient)(nil)
