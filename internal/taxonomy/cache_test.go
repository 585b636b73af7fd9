package taxonomy

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGetRoundTrip(t *testing.T) {
	c, err := NewCache(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	doc := mustDecode(t, sampleDoc)
	hash := HashBody([]byte(sampleDoc))

	_, ok := c.Get("320193", hash)
	require.False(t, ok)

	require.NoError(t, c.Put("320193", hash, doc))

	got, ok := c.Get("320193", hash)
	require.True(t, ok)
	require.Equal(t, doc.EntityName, got.EntityName)
	require.Equal(t, len(doc.Facts["us-gaap"]), len(got.Facts["us-gaap"]))
}

func TestCache_EvictsStaleHashOnPut(t *testing.T) {
	c, err := NewCache(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	doc := mustDecode(t, sampleDoc)
	require.NoError(t, c.Put("320193", "oldhash", doc))
	require.NoError(t, c.Put("320193", "newhash", doc))

	_, ok := c.Get("320193", "oldhash")
	require.False(t, ok)

	_, ok = c.Get("320193", "newhash")
	require.True(t, ok)
}
