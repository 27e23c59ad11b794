// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete storage backend to run,
// which in turn register their factories and DDL builders with the storage
// package.
//
// Importing this package makes the following storage kinds available:
//
//   - "mssql"    (romeetl/internal/storage/mssql)
//   - "mysql"    (romeetl/internal/storage/mysql)
//   - "postgres" (romeetl/internal/storage/postgres)
//   - "sqlite"   (romeetl/internal/storage/sqlite)
//
// Typical usage:
//
//	import (
//	    _ "romeetl/internal/storage/all"
//
//	    "romeetl/internal/storage"
//	)
//
//	repo, err := storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
//	if err != nil {
//	    // handle error
//	}
//	defer repo.Close()
package all

import (
	_ "romeetl/internal/storage/mssql"
	_ "romeetl/internal/storage/mysql"
	_ "romeetl/internal/storage/postgres"
	_ "romeetl/internal/storage/sqlite"
)
