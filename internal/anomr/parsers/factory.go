package parsers

import (
	"fmt"
	"strings"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

// NewParser returns a Parser for the given dbType. Only PostgreSQL logs are supported.
func (f *Factory) NewParser(dbType string) (Parser, error) {
	switch strings.ToLower(dbType) {
	case "postgres", "pg", "postgresql":
		return NewPostgresParser(), nil
	default:
		return nil, fmt.Errorf("unsupported db type: %s", dbType)
	}
}
