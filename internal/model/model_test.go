package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayloadClone(t *testing.T) {
	p := Payload{"a": 1, "b": "x"}
	c := p.Clone()
	c["a"] = 2
	assert.Equal(t, 1, p["a"])

	assert.Nil(t, Payload(nil).Clone())
}

func TestCategoryTiers(t *testing.T) {
	assert.True(t, CategoryCache.ShortTerm())
	assert.True(t, CategoryWorking.ShortTerm())
	assert.False(t, CategorySemantic.ShortTerm())

	assert.True(t, CategorySemantic.Durable())
	assert.True(t, CategoryWorkingPersisted.Durable())
	assert.False(t, CategoryCache.Durable())

	assert.True(t, CategoryEpisodicSummaries.Episodic())
	assert.False(t, CategoryProceduralAgent.Episodic())
}

func TestCategoryCollection(t *testing.T) {
	assert.Equal(t, "lt_semantic", CategorySemantic.Collection())
	assert.Equal(t, "lt_working_persisted", CategoryWorkingPersisted.Collection())
}

func TestParseShortTermCategory(t *testing.T) {
	c, err := ParseShortTermCategory("cache")
	assert.NoError(t, err)
	assert.Equal(t, CategoryCache, c)

	_, err = ParseShortTermCategory("semantic")
	assert.Error(t, err)

	_, err = ParseShortTermCategory("")
	assert.Error(t, err)
}

func TestShortTermFilterMatches(t *testing.T) {
	rec := ShortTermRecord{MessageID: "m1", RunID: "r1", WorkflowID: "w1"}

	assert.True(t, ShortTermFilter{}.Matches(&rec))
	assert.True(t, ShortTermFilter{MessageID: "m1", RunID: "r1"}.Matches(&rec))
	assert.False(t, ShortTermFilter{MessageID: "m2"}.Matches(&rec))
	assert.False(t, ShortTermFilter{RunID: "r2"}.Matches(&rec))
	assert.False(t, ShortTermFilter{WorkflowID: "w2"}.Matches(&rec))
}
