package rescache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	jsoncanonicalizer "github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"

	"github.com/pario-ai/skirmish/pkg/models"
)

// Documented defaults for optional cacheable fields. An unset field hashes
// the same as one explicitly set to its default.
const (
	DefaultDifficulty   = models.DifficultyMedium
	DefaultLanguage     = "en"
	DefaultRoleReversal = false
)

// regionNames is checked in order; the first name found as a whole word
// sequence anywhere in the location wins.
var regionNames = []struct {
	keyword string
	region  models.Region
}{
	{"washington dc", models.RegionUSEast},
	{"new york", models.RegionUSEast},
	{"boston", models.RegionUSEast},
	{"massachusetts", models.RegionUSEast},
	{"new jersey", models.RegionUSEast},
	{"philadelphia", models.RegionUSEast},
	{"pennsylvania", models.RegionUSEast},
	{"virginia", models.RegionUSEast},
	{"maryland", models.RegionUSEast},
	{"connecticut", models.RegionUSEast},
	{"north carolina", models.RegionUSEast},
	{"atlanta", models.RegionUSEast},
	{"miami", models.RegionUSEast},
	{"florida", models.RegionUSEast},

	{"texas", models.RegionUSCentral},
	{"austin", models.RegionUSCentral},
	{"dallas", models.RegionUSCentral},
	{"houston", models.RegionUSCentral},
	{"chicago", models.RegionUSCentral},
	{"illinois", models.RegionUSCentral},
	{"ohio", models.RegionUSCentral},
	{"michigan", models.RegionUSCentral},
	{"minnesota", models.RegionUSCentral},
	{"missouri", models.RegionUSCentral},
	{"denver", models.RegionUSCentral},
	{"colorado", models.RegionUSCentral},

	{"california", models.RegionUSWest},
	{"los angeles", models.RegionUSWest},
	{"san francisco", models.RegionUSWest},
	{"seattle", models.RegionUSWest},
	{"washington", models.RegionUSWest},
	{"portland", models.RegionUSWest},
	{"oregon", models.RegionUSWest},
	{"las vegas", models.RegionUSWest},
	{"nevada", models.RegionUSWest},
	{"phoenix", models.RegionUSWest},
	{"arizona", models.RegionUSWest},
	{"utah", models.RegionUSWest},

	{"united kingdom", models.RegionEU},
	{"london", models.RegionEU},
	{"england", models.RegionEU},
	{"ireland", models.RegionEU},
	{"dublin", models.RegionEU},
	{"germany", models.RegionEU},
	{"berlin", models.RegionEU},
	{"france", models.RegionEU},
	{"paris", models.RegionEU},
	{"spain", models.RegionEU},
	{"madrid", models.RegionEU},
	{"italy", models.RegionEU},
	{"netherlands", models.RegionEU},
	{"amsterdam", models.RegionEU},
	{"europe", models.RegionEU},

	{"japan", models.RegionAPAC},
	{"tokyo", models.RegionAPAC},
	{"singapore", models.RegionAPAC},
	{"australia", models.RegionAPAC},
	{"sydney", models.RegionAPAC},
	{"india", models.RegionAPAC},
	{"mumbai", models.RegionAPAC},
	{"bangalore", models.RegionAPAC},
	{"hong kong", models.RegionAPAC},
	{"china", models.RegionAPAC},
	{"korea", models.RegionAPAC},
	{"seoul", models.RegionAPAC},
}

// regionCodes are state and country abbreviations. They only count as the
// whole last comma-separated segment ("Austin, TX"), since short codes also
// occur as ordinary words.
var regionCodes = map[string]models.Region{
	"ny": models.RegionUSEast,
	"ma": models.RegionUSEast,
	"nj": models.RegionUSEast,
	"pa": models.RegionUSEast,
	"dc": models.RegionUSEast,
	"va": models.RegionUSEast,
	"md": models.RegionUSEast,
	"ct": models.RegionUSEast,
	"nc": models.RegionUSEast,
	"ga": models.RegionUSEast,
	"fl": models.RegionUSEast,
	"tx": models.RegionUSCentral,
	"il": models.RegionUSCentral,
	"mi": models.RegionUSCentral,
	"mn": models.RegionUSCentral,
	"mo": models.RegionUSCentral,
	"co": models.RegionUSCentral,
	"ca": models.RegionUSWest,
	"wa": models.RegionUSWest,
	"nv": models.RegionUSWest,
	"az": models.RegionUSWest,
	"uk": models.RegionEU,
	"eu": models.RegionEU,
}

// RegionOf collapses a free-text location into a region bucket. A trailing
// code wins over names. Unknown and empty locations map to
// models.RegionOther.
func RegionOf(location string) models.Region {
	lower := strings.ToLower(location)
	if i := strings.LastIndex(lower, ","); i >= 0 {
		if r, ok := regionCodes[strings.Join(words(lower[i+1:]), " ")]; ok {
			return r
		}
	}
	ws := words(lower)
	if len(ws) == 0 {
		return models.RegionOther
	}
	padded := " " + strings.Join(ws, " ") + " "
	for _, k := range regionNames {
		if strings.Contains(padded, " "+k.keyword+" ") {
			return k.region
		}
	}
	return models.RegionOther
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// canonicalConfig is the hashed form. Optional fields without a default are
// pointers so that they encode as an explicit null.
type canonicalConfig struct {
	Persona      string        `json:"persona"`
	Difficulty   string        `json:"difficulty"`
	Language     string        `json:"language"`
	Voice        *string       `json:"voice"`
	Model        *string       `json:"model"`
	Region       models.Region `json:"region"`
	RoleReversal bool          `json:"role_reversal"`
	Temperament  *string       `json:"temperament"`
}

func optional(s string) *string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	return &s
}

// normalize applies defaults and region bucketing to cfg.
func normalize(cfg models.CacheableConfig) canonicalConfig {
	c := canonicalConfig{
		Persona:      strings.ToLower(strings.TrimSpace(cfg.Persona)),
		Difficulty:   strings.ToLower(strings.TrimSpace(string(cfg.Difficulty))),
		Language:     strings.ToLower(strings.TrimSpace(cfg.Language)),
		Voice:        optional(cfg.Voice),
		Model:        optional(cfg.Model),
		Region:       RegionOf(cfg.Location),
		RoleReversal: DefaultRoleReversal,
		Temperament:  optional(cfg.Temperament),
	}
	if c.Difficulty == "" {
		c.Difficulty = string(DefaultDifficulty)
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if cfg.RoleReversal != nil {
		c.RoleReversal = *cfg.RoleReversal
	}
	return c
}

// Canonical returns the RFC 8785 canonical JSON of the normalized config.
func Canonical(cfg models.CacheableConfig) ([]byte, error) {
	raw, err := json.Marshal(normalize(cfg))
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	out, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize config: %w", err)
	}
	return out, nil
}

// Hash returns the hex SHA-256 of the canonical config. Dynamic per-call
// fields are not part of models.CacheableConfig and never affect it.
func Hash(cfg models.CacheableConfig) string {
	b, err := Canonical(cfg)
	if err != nil {
		// normalize only produces strings and bools, which always encode.
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
