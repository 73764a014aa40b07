package analysis

import "github.com/google/uuid"

// Generator hands out analysis ids. Generation numbers are owned by the
// Analyzer and assigned under its lock.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Next() string {
	return uuid.NewString()
}
