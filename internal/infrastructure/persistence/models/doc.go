// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// of ORM concerns.
//
// Each model provides:
//   - TableName() for the table mapping
//   - ToDomain() to build the domain type
//   - FromDomain() to populate itself from the domain type
//
// Money columns are decimal(18,2) backed by shopspring/decimal.
package models
