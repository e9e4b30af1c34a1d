package answercheck_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"jeopardybot/answercheck"
)

func TestCheckExactMatch(t *testing.T) {
	assert.True(t, answercheck.Check("Пушкин", []string{"Пушкин"}))
}

func TestCheckTrimsWhitespaceAndCase(t *testing.T) {
	assert.True(t, answercheck.Check("пушкин ", []string{"Пушкин"}))
	assert.True(t, answercheck.Check(" Пушкин", []string{"пушкин"}))
}

func TestCheckDifferentAlphabetRejected(t *testing.T) {
	assert.False(t, answercheck.Check("Pushkin", []string{"Пушкин"}))
}

func TestCheckAcceptsExtraAcceptedAnswer(t *testing.T) {
	assert.True(t, answercheck.Check("А.С. Пушкин", []string{"Пушкин", "А.С. Пушкин"}))
}

func TestCheckBracketedContentStripped(t *testing.T) {
	assert.True(t, answercheck.Check("Пушкин (1799)", []string{"Пушкин"}))
}

func TestCheckEYoNormalization(t *testing.T) {
	assert.True(t, answercheck.Check("ёж", []string{"еж"}))
}

func TestCheckNoMatch(t *testing.T) {
	assert.False(t, answercheck.Check("Лермонтов", []string{"Пушкин"}))
}
