package invite

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

const (
	CodeLength = 8
	Alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	MaxRetries = 20
)

var ErrCodeSpaceExhausted = errors.New("invite: no unique code after max retries")

// UniquenessChecker reports whether code is not yet assigned to any group.
type UniquenessChecker func(ctx context.Context, code string) (bool, error)

type Generator struct {
	random     io.Reader
	maxRetries int
}

func NewGenerator() *Generator {
	return &Generator{random: rand.Reader, maxRetries: MaxRetries}
}

// Generate draws CodeLength symbols uniformly from Alphabet.
func (g *Generator) Generate() (string, error) {
	limit := big.NewInt(int64(len(Alphabet)))
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(g.random, limit)
		if err != nil {
			return "", fmt.Errorf("invite: read random: %w", err)
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// GenerateUnique loops Generate until isUnique accepts a code. It gives up
// with ErrCodeSpaceExhausted after maxRetries draws.
func (g *Generator) GenerateUnique(ctx context.Context, isUnique UniquenessChecker) (string, error) {
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := g.Generate()
		if err != nil {
			return "", err
		}
		ok, err := isUnique(ctx, code)
		if err != nil {
			return "", fmt.Errorf("invite: check uniqueness: %w", err)
		}
		if ok {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// IsValid reports whether code has the invite code shape.
func IsValid(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

// Normalize cleans user input before lookup.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
