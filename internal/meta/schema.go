package meta

import _ "embed"

// Schema is the MySQL DDL for every table SQLStore reads.  `siteadmin
// schema` prints it for operators.
//
//go:embed schema.sql
var Schema string
