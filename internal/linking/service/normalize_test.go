package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, normalizeTitle("Ботинки женские Xena 38"), normalizeTitle("XENA ботинки, женские 38"))
	assert.Equal(t, "38р ботинки", normalizeTitle("Ботинки 38 р"))
	assert.Equal(t, "37.5 туфли", normalizeTitle("Туфли 37,5"))
	assert.Equal(t, "", normalizeTitle(""))
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, normalizeCategory("Ботинки / Зимние"), normalizeCategory("ботинки зимние"))
	assert.Equal(t, "", normalizeCategory("  "))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity("", ""))
	assert.Equal(t, 0.0, similarity("abc", ""))
	assert.Equal(t, 1, damerauLevenshtein("ab", "ba"), "transposition counts once")
	assert.InDelta(t, 0.75, similarity("abcd", "abcx"), 1e-9)
	assert.Greater(t, titleSimilarity("Сапоги зимние Xena", "Сапоги зимнии Xena"), DefaultTitleThreshold)
}
