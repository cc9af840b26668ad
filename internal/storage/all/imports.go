// Package all wires all built-in storage backends into the storage factory.
//
// Importing it for side effects registers these kinds:
//
//   - "memory"
//   - "sqlite"
//   - "postgres"
//   - "mssql"
//   - "mysql"
//   - "redis"
//
// Binaries that need only a subset can import the backend packages directly.
package all

import (
	_ "propetl/internal/storage/memory"
	_ "propetl/internal/storage/mssql"
	_ "propetl/internal/storage/mysql"
	_ "propetl/internal/storage/postgres"
	_ "propetl/internal/storage/redisstore"
	_ "propetl/internal/storage/sqlite"
)
