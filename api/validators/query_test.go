package validators

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest("GET", "/?limit=10&bad=x&big=500", nil)

	v, err := ParseQueryInt(r, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	v, err = ParseQueryInt(r, "missing", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, v)

	_, err = ParseQueryInt(r, "bad", 25, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseQueryInt(r, "big", 25, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryTime(t *testing.T) {
	r := httptest.NewRequest("GET", "/?from=2026-03-01&to=2026-03-02T10:00:00-05:00&bad=yesterday", nil)

	from, err := ParseQueryTime(r, "from")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), from)

	to, err := ParseQueryTime(r, "to")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), to)

	missing, err := ParseQueryTime(r, "until")
	require.NoError(t, err)
	assert.True(t, missing.IsZero())

	_, err = ParseQueryTime(r, "bad")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
