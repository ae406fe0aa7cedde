// Package sanitize is the last gate before a reply reaches the user.
// It guarantees a non-empty, bounded response and optionally asks the
// model for a friendlier phrasing, without ever trusting it to keep
// the numbers intact unchecked.
package sanitize

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/oracle"
)

const emptyReplyApology = "Desculpe, não consegui gerar uma resposta agora. Pode tentar de novo?"

var (
	emojiPattern = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}]|[\x{2600}-\x{27BF}]|✅|❓|⚠️`)
	// Bare markdown markers suggest the reply was already formatted
	// deliberately by a handler.
	markdownPattern = regexp.MustCompile(`\*[^*]+\*|^- `)
	numberPattern   = regexp.MustCompile(`\d+(?:[.,]\d+)*`)
)

type Sanitizer struct {
	oracle oracle.Oracle
	log    zerolog.Logger
	maxLen int
}

func New(o oracle.Oracle, log zerolog.Logger, maxLen int) *Sanitizer {
	return &Sanitizer{oracle: o, log: log, maxLen: maxLen}
}

// Polish never fails: the worst case returns the input unchanged, the
// empty case returns a stock apology.
func (s *Sanitizer) Polish(ctx context.Context, reply string) string {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return emptyReplyApology
	}

	if !s.alreadyStyled(reply) {
		reply = s.touchUp(ctx, reply)
	}

	if s.maxLen > 0 && len(reply) > s.maxLen {
		reply = truncate(reply, s.maxLen)
	}
	return reply
}

// alreadyStyled reports whether a handler already produced a formatted
// reply (emoji, lists, bold), in which case the touch-up pass is
// skipped.
func (s *Sanitizer) alreadyStyled(reply string) bool {
	if emojiPattern.MatchString(reply) {
		return true
	}
	for _, line := range strings.Split(reply, "\n") {
		if markdownPattern.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

// touchUp asks the model for a friendlier phrasing. The rewrite is
// discarded if it drops or alters any number from the original: money
// and dates must survive verbatim.
func (s *Sanitizer) touchUp(ctx context.Context, reply string) string {
	prompt := fmt.Sprintf(`Reescreva a resposta abaixo de forma amigável e natural em português,
mantendo TODOS os números, valores e datas EXATAMENTE como estão.
Não adicione informações novas. Responda apenas com o texto reescrito.

Resposta original:
%s`, reply)

	rewritten, err := s.oracle.Infer(ctx, prompt)
	if err != nil {
		s.log.Warn().Err(err).Msg("sanitize: touch-up skipped")
		return reply
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return reply
	}
	if !sameNumbers(reply, rewritten) {
		s.log.Warn().Msg("sanitize: rewrite altered numbers, keeping original")
		return reply
	}
	return rewritten
}

// sameNumbers checks that every numeric token of the original is still
// present in the rewrite.
func sameNumbers(original, rewritten string) bool {
	for _, n := range numberPattern.FindAllString(original, -1) {
		if !strings.Contains(rewritten, n) {
			return false
		}
	}
	return true
}

// truncate cuts at a rune boundary and marks the cut.
func truncate(s string, maxLen int) string {
	const ellipsis = "..."
	cut := maxLen - len(ellipsis)
	if cut <= 0 {
		return s[:maxLen]
	}
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
