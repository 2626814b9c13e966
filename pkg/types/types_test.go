package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetSource(t *testing.T) {
	tests := []struct {
		name  string
		asset Asset
		want  string
	}{
		{"path only", Asset{Filename: "a.jpg", Path: "/media/a.jpg"}, "/media/a.jpg"},
		{"url wins", Asset{Filename: "a.jpg", Path: "/media/a.jpg", URL: "https://cdn/a.jpg"}, "https://cdn/a.jpg"},
		{"neither", Asset{Filename: "a.jpg"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.asset.Source())
		})
	}
}

func TestDecodeManifest(t *testing.T) {
	body := []byte(`{
		"images": [
			{"filename": "b.jpg", "path": "/b"},
			{"filename": "a.jpg", "url": "https://cdn/a"}
		],
		"config": {"slide_duration": 8}
	}`)

	m, err := DecodeManifest(body)
	require.NoError(t, err)

	assert.Equal(t, []string{"b.jpg", "a.jpg"}, m.Filenames(), "display order is preserved")
	assert.Equal(t, 8, m.Config.SlideDuration)
	assert.Equal(t, "https://cdn/a", m.Images[1].Source())
}

func TestDecodeManifestEmptyList(t *testing.T) {
	m, err := DecodeManifest([]byte(`{"images": [], "config": {"slide_duration": 5}}`))
	require.NoError(t, err)
	assert.Empty(t, m.Images)
}

func TestDecodeManifestRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing images", `{"config": {"slide_duration": 5}}`},
		{"null images", `{"images": null}`},
		{"not json", `<html>maintenance</html>`},
		{"images not a list", `{"images": "a.jpg"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeManifest([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestControlResponseRestart(t *testing.T) {
	tests := []struct {
		name string
		body string
		want UnixTime
	}{
		{"number", `{"result":"success","control":{"restart":1700000000}}`, 1700000000},
		{"string", `{"result":"success","control":{"restart":"1700000000"}}`, 1700000000},
		{"float", `{"result":"success","control":{"restart":1700000000.9}}`, 1700000000},
		{"null", `{"result":"success","control":{"restart":null}}`, 0},
		{"absent", `{"result":"success","control":{}}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp ControlResponse
			require.NoError(t, json.Unmarshal([]byte(tt.body), &resp))
			assert.True(t, resp.Succeeded())
			assert.Equal(t, tt.want, resp.Control.Restart)
		})
	}
}

func TestControlResponseNotSuccess(t *testing.T) {
	var resp ControlResponse
	require.NoError(t, json.Unmarshal([]byte(`{"result":"error"}`), &resp))
	assert.False(t, resp.Succeeded())
}

func TestUnixTimeInvalid(t *testing.T) {
	var u UnixTime
	assert.Error(t, json.Unmarshal([]byte(`"tomorrow"`), &u))
}

func TestUnixTimeTime(t *testing.T) {
	assert.Equal(t, int64(150), UnixTime(150).Time().Unix())
	assert.Positive(t, int64(Now()))
}
