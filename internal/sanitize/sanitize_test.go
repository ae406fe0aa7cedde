package sanitize

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eduardobonfim98/jarvis-planejador-financeiro/internal/oracle"
)

func newSanitizer(maxLen int, replies ...string) (*Sanitizer, *oracle.Fake) {
	fake := oracle.NewFake(replies...)
	return New(fake, zerolog.New(io.Discard), maxLen), fake
}

func TestPolishEmptyBecomesApology(t *testing.T) {
	s, _ := newSanitizer(8000)
	for _, in := range []string{"", "   ", "\n\n"} {
		if got := s.Polish(context.Background(), in); got != emptyReplyApology {
			t.Errorf("Polish(%q) = %q", in, got)
		}
	}
}

func TestPolishSkipsStyledReplies(t *testing.T) {
	s, fake := newSanitizer(8000)
	styled := []string{
		"✅ Gasto registrado: R$ 50,00 em Mercado",
		"📊 Seus limites:\n- Lazer: R$ 100,00",
		"Total:\n- Mercado: R$ 120,00",
		"Envie *Categoria Valor* para criar um limite.",
	}
	for _, in := range styled {
		if got := s.Polish(context.Background(), in); got != in {
			t.Errorf("styled reply changed: %q -> %q", in, got)
		}
	}
	if len(fake.Prompts) != 0 {
		t.Errorf("styled replies must not call the oracle, got %d calls", len(fake.Prompts))
	}
}

func TestPolishTouchUpKeepsNumbers(t *testing.T) {
	s, _ := newSanitizer(8000, "Você gastou R$ 150,00 este mês, tudo certo!")
	got := s.Polish(context.Background(), "Total gasto no mes: R$ 150,00")
	if got != "Você gastou R$ 150,00 este mês, tudo certo!" {
		t.Errorf("got %q", got)
	}
}

func TestPolishRejectsRewriteThatAltersNumbers(t *testing.T) {
	original := "Total gasto no mes: R$ 150,00"
	s, _ := newSanitizer(8000, "Você gastou R$ 155,00 este mês!")
	if got := s.Polish(context.Background(), original); got != original {
		t.Errorf("altered numbers must be rejected, got %q", got)
	}
}

func TestPolishSurvivesOracleFailure(t *testing.T) {
	s, _ := newSanitizer(8000) // empty script
	original := "Resposta sem formatacao especial"
	if got := s.Polish(context.Background(), original); got != original {
		t.Errorf("got %q", got)
	}
}

func TestPolishTruncatesLongReplies(t *testing.T) {
	s, _ := newSanitizer(50)
	long := "✅ " + strings.Repeat("a", 200)
	got := s.Polish(context.Background(), long)
	if len(got) > 50 {
		t.Errorf("len = %d, want <= 50", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated reply should end with ellipsis: %q", got)
	}
}

func TestTruncateRespectsRuneBoundary(t *testing.T) {
	s := "✅✅✅✅✅✅✅✅✅✅"
	got := truncate(s, 10)
	for _, r := range got {
		if r == '�' {
			t.Fatalf("truncate produced invalid UTF-8: %q", got)
		}
	}
}
