package referral

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"unicode"

	"github.com/gosimple/unidecode"
	"github.com/kursadbilgin/newsletter-engine/internal/domain"
)

const (
	baseLength         = 4
	defaultMaxAttempts = 10
	alphabet           = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// CodeChecker answers whether a referral code is already assigned.
type CodeChecker interface {
	ExistsWithReferralCode(ctx context.Context, code string) (bool, error)
}

// CodeGenerator derives short referral codes from an email address.
type CodeGenerator struct {
	checker     CodeChecker
	maxAttempts int
	randIntn    func(n int) int
	onCollision func(code string)
}

// Option configures a CodeGenerator.
type Option func(*CodeGenerator)

// WithMaxAttempts bounds how many complements are tried before giving up.
func WithMaxAttempts(n int) Option {
	return func(g *CodeGenerator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithCollisionHook registers a callback invoked for every rejected candidate.
func WithCollisionHook(fn func(code string)) Option {
	return func(g *CodeGenerator) {
		g.onCollision = fn
	}
}

func withRandIntn(fn func(n int) int) Option {
	return func(g *CodeGenerator) {
		g.randIntn = fn
	}
}

func NewCodeGenerator(checker CodeChecker, opts ...Option) (*CodeGenerator, error) {
	if checker == nil {
		return nil, fmt.Errorf("referral code checker is required")
	}

	g := &CodeGenerator{
		checker:     checker,
		maxAttempts: defaultMaxAttempts,
		randIntn:    rand.Intn,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// Generate returns an unassigned six character code for email.
// The base (up to four characters of the local part) stays fixed across
// attempts; only the random complement is redrawn on collision.
func (g *CodeGenerator) Generate(ctx context.Context, email string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	base := Base(email)
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code := strings.ToUpper(base + g.complement(domain.ReferralCodeLength-len(base)))
		exists, err := g.checker.ExistsWithReferralCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check referral code uniqueness: %w", err)
		}
		if !exists {
			return code, nil
		}
		if g.onCollision != nil {
			g.onCollision(code)
		}
	}

	return "", fmt.Errorf("%w: base %q after %d attempts", domain.ErrReferralCodeExhausted, base, g.maxAttempts)
}

func (g *CodeGenerator) complement(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[g.randIntn(len(alphabet))])
	}
	return b.String()
}

// Base returns the deterministic prefix of a referral code for email: the
// local part transliterated to ASCII, stripped of everything that is not a
// letter or digit, cut to four characters.
func Base(email string) string {
	local := unidecode.Unidecode(domain.EmailLocalPart(email))

	var b strings.Builder
	for _, r := range local {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		b.WriteRune(r)
		if b.Len() == baseLength {
			break
		}
	}
	return b.String()
}
