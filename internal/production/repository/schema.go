package repository

import (
	_ "embed"
)

// Schema is the DDL for the three production tables.
//
//go:embed schema.sql
var Schema string
