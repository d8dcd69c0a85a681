package donut

import (
	"regexp"
	"strings"
)

var reFirstTag = regexp.MustCompile(`<.*?>`)

// CleanAnswer turns a decoded sequence into the bare answer text.
// End-of-sequence and padding markers are removed everywhere. When the decoded
// sequence echoes the seed, everything through the answer marker is dropped;
// otherwise only the first tag is. A closing answer marker is removed last.
func CleanAnswer(decoded, eosToken, padToken string) string {
	s := decoded
	if eosToken != "" {
		s = strings.ReplaceAll(s, eosToken, "")
	}
	if padToken != "" {
		s = strings.ReplaceAll(s, padToken, "")
	}

	if i := strings.Index(s, AnswerStart); i >= 0 {
		s = s[i+len(AnswerStart):]
	} else if loc := reFirstTag.FindStringIndex(s); loc != nil {
		s = s[:loc[0]] + s[loc[1]:]
	}

	if i := strings.Index(s, AnswerEnd); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
