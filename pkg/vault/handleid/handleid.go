// Package handleid generates short, collision-resistant identifiers used to
// correlate log lines across a replica's lifetime (open, re-key, recover).
// These identifiers never touch the on-disk format; replica identity for the
// on-disk envelope is handled separately by the replicateddir package.
package handleid

import (
	"errors"
	"regexp"
	"strings"

	"github.com/sealedbox/vaultcore/pkg/encoding"
	"github.com/sealedbox/vaultcore/pkg/random"
)

const (
	// PrefixReplica is the prefix used for per-replica log-correlation
	// identifiers.
	PrefixReplica = "repl"
	// PrefixRotation is the prefix used for key-rotation operation
	// identifiers.
	PrefixRotation = "rota"
	// PrefixRecovery is the prefix used for reconciliation/recovery pass
	// identifiers.
	PrefixRecovery = "rcvr"

	// requiredPrefixLength is the required length for identifier prefixes.
	requiredPrefixLength = 4
	// collisionResistantLength is the number of random bytes needed to ensure
	// collision-resistance in an identifier.
	collisionResistantLength = 32
	// targetBase62Length is the target length for the Base62-encoded portion
	// of the identifier. This is set to the maximum possible length that a
	// byte array of collisionResistantLength bytes will take to encode in
	// Base62 encoding. This length can be computed for n bytes using the
	// formula ceil(n*8*ln(2)/ln(62))).
	targetBase62Length = 43
)

// matcher is a regular expression that matches identifiers produced by New.
var matcher = regexp.MustCompile("^[a-z]{4}_[0-9a-zA-Z]{43}$")

// New generates a new collision-resistant identifier with the specified
// prefix. The prefix should have a length of requiredPrefixLength.
func New(prefix string) (string, error) {
	// Ensure that the prefix length is correct.
	if len(prefix) != requiredPrefixLength {
		return "", errors.New("incorrect prefix length")
	}

	// Ensure that each prefix character is allowed.
	for _, r := range prefix {
		if !('a' <= r && r <= 'z') {
			return "", errors.New("invalid prefix character")
		}
	}

	// Create the random value.
	value, err := random.New(collisionResistantLength)
	if err != nil {
		return "", err
	}

	// Encode the random value using a Base62 encoding scheme. As a sanity
	// check, ensure that the encoded value doesn't exceed the target length.
	encoded := encoding.EncodeBase62(value)
	if len(encoded) > targetBase62Length {
		panic("encoded random data length longer than expected")
	}

	// Create a string builder.
	builder := &strings.Builder{}

	// Add the identifier prefix.
	builder.WriteString(prefix)

	// Add the separator.
	builder.WriteRune('_')

	// If the encoded value has a length less than the target length, then
	// left-pad it with 0s. Actually, we technically pad it using whatever the
	// zero value is in our Base62 alphabet, but that happens to be '0'.
	for i := targetBase62Length - len(encoded); i > 0; i-- {
		builder.WriteByte(encoding.Base62Alphabet[0])
	}

	// Write the encoded value.
	builder.WriteString(encoded)

	// Success.
	return builder.String(), nil
}

// IsValid determines whether or not a string is a valid identifier.
func IsValid(value string) bool {
	return matcher.MatchString(value)
}
