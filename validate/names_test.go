package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	gmqb "github.com/squall-chua/mongofacade"
)

func TestDatabaseNameRejectsEmpty(t *testing.T) {
	err := DatabaseName("")
	assert.Error(t, err)
	assert.Equal(t, gmqb.KindInvalidArgument, gmqb.KindOf(err))
}

func TestDatabaseNameRejectsTooLong(t *testing.T) {
	err := DatabaseName(strings.Repeat("a", 256))
	assert.Error(t, err)
}

func TestDatabaseNameAcceptsMaxLength(t *testing.T) {
	assert.NoError(t, DatabaseName(strings.Repeat("a", 255)))
}

func TestDatabaseNameRejectsLeadingDot(t *testing.T) {
	assert.Error(t, DatabaseName(".hidden"))
}

func TestDatabaseNameRejectsPathSeparatorsAndDotDot(t *testing.T) {
	assert.Error(t, DatabaseName("a/b"))
	assert.Error(t, DatabaseName(`a\b`))
	assert.Error(t, DatabaseName("a..b"))
}

func TestDatabaseNameRejectsNullByte(t *testing.T) {
	assert.Error(t, DatabaseName("a\x00b"))
}

func TestDatabaseNameRejectsDisallowedCharacterClass(t *testing.T) {
	assert.Error(t, DatabaseName("has space"))
	assert.Error(t, DatabaseName("has$dollar"))
}

func TestDatabaseNameAcceptsLettersDigitsUnderscoreHyphen(t *testing.T) {
	assert.NoError(t, DatabaseName("my_db-01"))
}

func TestCollectionNameRejectsEmpty(t *testing.T) {
	assert.Error(t, CollectionName(""))
}

func TestCollectionNameRejectsTooLong(t *testing.T) {
	assert.Error(t, CollectionName(strings.Repeat("a", 256)))
}

func TestCollectionNameRejectsNullByte(t *testing.T) {
	assert.Error(t, CollectionName("coll\x00name"))
}

func TestCollectionNameRequiresLetterOrUnderscoreStart(t *testing.T) {
	assert.Error(t, CollectionName("1coll"))
	assert.Error(t, CollectionName(".coll"))
	assert.NoError(t, CollectionName("_coll"))
	assert.NoError(t, CollectionName("Coll"))
}

func TestCollectionNameAllowsDotAfterFirstCharacter(t *testing.T) {
	assert.NoError(t, CollectionName("orders.archive"))
}

func TestCollectionNameRejectsUnknownSystemPrefix(t *testing.T) {
	assert.Error(t, CollectionName("system.custom"))
}

func TestCollectionNameAllowsKnownSystemCollections(t *testing.T) {
	assert.NoError(t, CollectionName("system.indexes"))
	assert.NoError(t, CollectionName("system.users"))
	assert.NoError(t, CollectionName("system.profile"))
	assert.NoError(t, CollectionName("system.views"))
	assert.NoError(t, CollectionName("system.js"))
}
