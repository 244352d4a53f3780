package importer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	input   *s3.GetObjectInput
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.input = params
	body, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func snappyEncode(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	_, err := w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestOpenSource_File(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "titles.csv")
	require.NoError(t, os.WriteFile(plain, []byte("show_id\ns1\n"), 0o600))
	compressed := filepath.Join(dir, "titles.csv"+SnappySuffix)
	require.NoError(t, os.WriteFile(compressed, snappyEncode(t, "show_id\ns2\n"), 0o600))

	rc, err := OpenSource(context.Background(), plain, SourceConfig{})
	require.NoError(t, err)
	assert.Equal(t, "show_id\ns1\n", readAll(t, rc))

	rc, err = OpenSource(context.Background(), compressed, SourceConfig{})
	require.NoError(t, err)
	assert.Equal(t, "show_id\ns2\n", readAll(t, rc))

	_, err = OpenSource(context.Background(), filepath.Join(dir, "missing.csv"), SourceConfig{})
	assert.Error(t, err)

	_, err = OpenSource(context.Background(), "  ", SourceConfig{})
	assert.Error(t, err)
}

func TestOpenSource_Stdin(t *testing.T) {
	rc, err := OpenSource(context.Background(), "-", SourceConfig{Stdin: strings.NewReader("show_id\n")})
	require.NoError(t, err)
	assert.Equal(t, "show_id\n", readAll(t, rc))
}

func TestOpenSource_S3(t *testing.T) {
	client := &fakeS3{objects: map[string]string{
		"exports/netflix/titles.csv":    "show_id\ns3\n",
		"exports/netflix/titles.csv.sz": string(snappyEncode(t, "show_id\ns4\n")),
	}}
	cfg := SourceConfig{S3: client}

	rc, err := OpenSource(context.Background(), "s3://exports/netflix/titles.csv", cfg)
	require.NoError(t, err)
	assert.Equal(t, "show_id\ns3\n", readAll(t, rc))
	assert.Equal(t, "exports", aws.ToString(client.input.Bucket))
	assert.Equal(t, "netflix/titles.csv", aws.ToString(client.input.Key))

	rc, err = OpenSource(context.Background(), "s3://exports/netflix/titles.csv.sz", cfg)
	require.NoError(t, err)
	assert.Equal(t, "show_id\ns4\n", readAll(t, rc))

	_, err = OpenSource(context.Background(), "s3://exports/missing.csv", cfg)
	assert.ErrorContains(t, err, "NoSuchKey")
}

func TestParseS3Location(t *testing.T) {
	bucket, key, err := parseS3Location("s3://bucket/path/to/file.csv")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "path/to/file.csv", key)

	for _, bad := range []string{"s3://bucket", "s3://bucket/", "s3:///key", "http://bucket/key"} {
		_, _, err := parseS3Location(bad)
		assert.Error(t, err, bad)
	}
}
