package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context carries a request context together with an optional GORM
// transaction so repos can participate in a caller-owned transaction.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
