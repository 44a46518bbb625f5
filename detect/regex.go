package detect

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultRegexTimeout bounds backtracking so a pathological pattern cannot
// stall a worker (ReDoS guard).
const DefaultRegexTimeout = 500 * time.Millisecond

const regexCacheSize = 512

// RegexCache compiles condition patterns case-insensitively with a match
// timeout and keeps the compiled form in an LRU. Caching is an optimization;
// correctness only requires per-call compilation.
type RegexCache struct {
	cache   *lru.Cache[string, *regexp2.Regexp]
	timeout time.Duration
}

// NewRegexCache creates a cache with the default timeout.
func NewRegexCache() (*RegexCache, error) {
	cache, err := lru.New[string, *regexp2.Regexp](regexCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create regex cache: %w", err)
	}
	return &RegexCache{cache: cache, timeout: DefaultRegexTimeout}, nil
}

// Match reports whether input matches the pattern. Patterns are always
// case-insensitive. Compile failures and timeouts surface as errors for the
// caller to log and treat as no-match.
func (rc *RegexCache) Match(pattern, input string) (bool, error) {
	re, ok := rc.cache.Get(pattern)
	if !ok {
		var err error
		re, err = regexp2.Compile(pattern, regexp2.IgnoreCase)
		if err != nil {
			return false, fmt.Errorf("failed to compile regex pattern: %w", err)
		}
		re.MatchTimeout = rc.timeout
		rc.cache.Add(pattern, re)
	}

	match, err := re.MatchString(input)
	if err != nil {
		return false, fmt.Errorf("regex matching error: %w", err)
	}
	return match, nil
}
