package token

import (
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestClassificationIsCaseInsensitive checks that classification depends
// only on substring presence, never on the casing of the surrounding text.
func TestClassificationIsCaseInsensitive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	triggers := []string{
		"please run az login", "token has expired", "command not found",
		"insufficient permissions", "timeout", "rate limit", "503",
	}

	properties.Property("uppercasing a triggering message never changes its class", prop.ForAll(
		func(idx int, prefix, suffix string) bool {
			trigger := triggers[idx%len(triggers)]
			msg := prefix + trigger + suffix
			lower := Classify(errors.New(msg))
			upper := Classify(errors.New(strings.ToUpper(msg)))
			return lower == upper && lower != ClassUnknown
		},
		gen.IntRange(0, len(triggers)-1),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
