package iojson

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, item{ID: "a", Count: 2}))
	assert.Equal(t, "{\n  \"id\": \"a\",\n  \"count\": 2\n}\n", buf.String())
}

func TestWriteLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLine(&buf, item{ID: "a", Count: 1}))
	require.NoError(t, WriteLine(&buf, item{ID: "b", Count: 2}))
	assert.Equal(t, "{\"id\":\"a\",\"count\":1}\n{\"id\":\"b\",\"count\":2}\n", buf.String())
}

func TestWrite_Unencodable(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, make(chan int)))
}

func TestFileReader_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"x","count":3}`), 0o644))

	fr := FileReader[item]{path: path}
	assert.True(t, fr.Available())

	got, err := fr.Read()
	require.NoError(t, err)
	assert.Equal(t, item{ID: "x", Count: 3}, got)
}

func TestFileReader_PipedStdin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stdin.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"piped"}`), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	fr := FileReader[item]{stdin: f}
	assert.True(t, fr.Available())

	got, err := fr.Read()
	require.NoError(t, err)
	assert.Equal(t, "piped", got.ID)
}

func TestFileReader_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))

	_, err := (&FileReader[item]{path: path}).Read()
	assert.ErrorContains(t, err, "decode JSON")
}
