package common

import (
	"fmt"
	"regexp"
)

// CompilePattern compiles a rule pattern, case-insensitively unless the
// pattern already sets its own flags.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidConfig)
	}
	expr := pattern
	if len(expr) < 2 || expr[:2] != "(?" {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern %q: %w", ErrInvalidConfig, pattern, err)
	}
	return re, nil
}
