package roster

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCanonicalHeaders(t *testing.T) {
	res, err := Parse(strings.NewReader(
		"Name,Enrollment,Email\n" +
			"Asha,21CS001,Asha@Example.com\n" +
			"Ravi,21CS002,\n",
	))
	require.NoError(t, err)
	require.Len(t, res.Participants, 2)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, "Asha", res.Participants[0].Name)
	assert.Equal(t, "21CS001", res.Participants[0].Enrollment)
	assert.Equal(t, "asha@example.com", res.Participants[0].Email)
	assert.Equal(t, "", res.Participants[1].Email)
	assert.False(t, res.Participants[0].CheckedIn)
}

func TestParseSynonymsAndSpacing(t *testing.T) {
	res, err := Parse(strings.NewReader(
		"\ufeff  Student Full Name , Roll No,Contact Email,Branch\n" +
			"  Meera  ,  R-17 , MEERA@x.io,CSE\n",
	))
	require.NoError(t, err)
	require.Len(t, res.Participants, 1)
	p := res.Participants[0]
	assert.Equal(t, "Meera", p.Name)
	assert.Equal(t, "R-17", p.Enrollment)
	assert.Equal(t, "meera@x.io", p.Email)
}

func TestParseSkipsIncompleteRows(t *testing.T) {
	res, err := Parse(strings.NewReader(
		"name,registration number\n" +
			"Asha,21CS001\n" +
			",21CS002\n" +
			"Ravi,\n" +
			",,\n" +
			"Kiran\n",
	))
	require.NoError(t, err)
	assert.Len(t, res.Participants, 1)
	assert.Equal(t, 3, res.Skipped)
}

func TestParseWithoutMatchingColumns(t *testing.T) {
	res, err := Parse(strings.NewReader("first,last\nA,B\n"))
	require.NoError(t, err)
	assert.Empty(t, res.Participants)
	assert.Equal(t, 1, res.Skipped)
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrNoHeader))
}
