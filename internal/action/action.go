// Package action encodes the semantic payload of a message button into the
// opaque custom-ID string the chat platform echoes back on click, and
// decodes clicks into a closed verb set plus the genome and seed they refer
// to.
package action

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"musegen/internal/genome"
)

// prefix namespaces evolution-session buttons within the bot's custom IDs.
const prefix = "evo"

const separator = "#"

// Verb is what a clicked button means. The set is closed; decoding rejects
// anything else.
type Verb int

const (
	VerbRateDown2 Verb = iota
	VerbRateDown1
	VerbRateZero
	VerbRateUp1
	VerbRateUp2
	VerbPromote
)

var verbNames = map[Verb]string{
	VerbRateDown2: "rate_n2",
	VerbRateDown1: "rate_n1",
	VerbRateZero:  "rate_0",
	VerbRateUp1:   "rate_p1",
	VerbRateUp2:   "rate_p2",
	VerbPromote:   "promote",
}

// RatingVerbs lists the five rating verbs in display order.
var RatingVerbs = []Verb{VerbRateDown2, VerbRateDown1, VerbRateZero, VerbRateUp1, VerbRateUp2}

// Score maps a rating verb onto its fitness value. ok is false for
// non-rating verbs.
func (v Verb) Score() (int, bool) {
	switch v {
	case VerbRateDown2:
		return 0, true
	case VerbRateDown1:
		return 25, true
	case VerbRateZero:
		return 50, true
	case VerbRateUp1:
		return 75, true
	case VerbRateUp2:
		return 100, true
	default:
		return 0, false
	}
}

// Label is the button text shown to the user.
func (v Verb) Label() string {
	switch v {
	case VerbRateDown2:
		return "-2"
	case VerbRateDown1:
		return "-1"
	case VerbRateZero:
		return "0"
	case VerbRateUp1:
		return "1"
	case VerbRateUp2:
		return "2"
	case VerbPromote:
		return "To gallery"
	default:
		return "?"
	}
}

func (v Verb) String() string {
	if name, ok := verbNames[v]; ok {
		return name
	}
	return fmt.Sprintf("verb(%d)", int(v))
}

// Action is one decoded button payload.
type Action struct {
	Verb   Verb
	Genome genome.Genome
	Seed   int64
}

// Encode renders the action as prefix#genome#seed#verb.
func Encode(a Action) string {
	return strings.Join([]string{
		prefix,
		genome.EncodeToken(a.Genome),
		strconv.FormatInt(a.Seed, 10),
		a.Verb.String(),
	}, separator)
}

// Belongs reports whether a custom ID is in this package's namespace, so
// the interaction dispatcher can leave other buttons to other handlers.
func Belongs(customID string) bool {
	return strings.HasPrefix(customID, prefix+separator)
}

// Decode parses a custom ID produced by Encode. Malformed tokens are
// rejected with a distinguishable error; they are never defaulted.
func Decode(customID string) (Action, error) {
	parts := strings.Split(customID, separator)
	if len(parts) != 4 {
		return Action{}, errors.Errorf("custom ID has %d components, want 4", len(parts))
	}
	if parts[0] != prefix {
		return Action{}, errors.Errorf("unrecognized custom ID prefix %q", parts[0])
	}

	g, err := genome.DecodeToken(parts[1])
	if err != nil {
		return Action{}, err
	}

	seed, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Action{}, errors.Wrapf(err, "invalid seed %q", parts[2])
	}

	var verb Verb
	found := false
	for v, name := range verbNames {
		if name == parts[3] {
			verb = v
			found = true
			break
		}
	}
	if !found {
		return Action{}, errors.Errorf("unrecognized verb %q", parts[3])
	}

	return Action{Verb: verb, Genome: g, Seed: seed}, nil
}
