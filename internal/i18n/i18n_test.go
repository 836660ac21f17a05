package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundledLocales(t *testing.T) {
	tr, err := Bundled("es")
	require.NoError(t, err)

	assert.True(t, tr.Supports("en"))
	assert.True(t, tr.Supports("es"))
	assert.Equal(t, "Días", tr.T("es", KeyExportDays))
	assert.Equal(t, "Days", tr.T("en", KeyExportDays))
	assert.Equal(t, "Invalid request", tr.T("en", KeyValidationInvalid))
}

func TestFallbacks(t *testing.T) {
	tr := New("es")
	require.NoError(t, tr.LoadTranslations(fstest.MapFS{
		"es.json": {Data: []byte(`{"greeting": "Hola", "only.es": "Solo"}`)},
		"en.json": {Data: []byte(`{"greeting": "Hello"}`)},
	}))

	assert.Equal(t, "Hello", tr.T("en", "greeting"))
	assert.Equal(t, "Solo", tr.T("en", "only.es"))
	assert.Equal(t, "Hola", tr.T("fr", "greeting"))
	assert.Equal(t, "missing.key", tr.T("en", "missing.key"))
}

func TestLoadTranslationsRejectsBadJSON(t *testing.T) {
	tr := New("en")
	err := tr.LoadTranslations(fstest.MapFS{"en.json": {Data: []byte(`{`)}})
	assert.Error(t, err)
}
