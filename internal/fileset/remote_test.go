package fileset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifestLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr bool
	}{
		{"valid", "dns.2015.Y.mtbl", false},
		{"trailing whitespace trimmed", "dns.2015.Y.mtbl \r\n", false},
		{"empty line", "", true},
		{"not a bare basename", "data/dns.2015.Y.mtbl", true},
		{"wrong prefix", "other.2015.Y.mtbl", true},
		{"wrong extension", "dns.2015.Y.bin", true},
		{"unparseable", "dns.2015.Z.mtbl", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseManifestLine(tt.line, "dns", "mtbl")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "dns.2015.Y.mtbl", d.Name)
		})
	}
}

func TestParseManifest(t *testing.T) {
	body := strings.Join([]string{
		"dns.2014.Y.mtbl",
		"dns.201501.M.mtbl",
		"",                  // blank lines are skipped, not counted as rejects
		"not/a-basename.bad", // rejected
		"other.2015.Y.mtbl", // wrong prefix, rejected
	}, "\n")

	got, rejected, err := ParseManifest(strings.NewReader(body), "dns", "mtbl")
	require.NoError(t, err)
	assert.Equal(t, 2, rejected)
	assert.Len(t, got, 2)

	year, _ := ParseName("dns.2014.Y.mtbl")
	month, _ := ParseName("dns.201501.M.mtbl")
	assert.True(t, got.Contains(year))
	assert.True(t, got.Contains(month))
}

func TestRelativeURI(t *testing.T) {
	tests := []struct {
		name        string
		manifestURI string
		fn          string
		want        string
	}{
		{
			name:        "sibling of manifest path",
			manifestURI: "https://example.com/data/dns.fileset",
			fn:          "dns.2015.Y.mtbl",
			want:        "https://example.com/data/dns.2015.Y.mtbl",
		},
		{
			name:        "absolute path replaces whole path but keeps authority",
			manifestURI: "https://example.com/data/dns.fileset",
			fn:          "/other/dns.2015.Y.mtbl",
			want:        "https://example.com/other/dns.2015.Y.mtbl",
		},
		{
			name:        "query string on manifest uri is discarded",
			manifestURI: "https://example.com/data/dns.fileset?token=abc",
			fn:          "dns.2015.Y.mtbl",
			want:        "https://example.com/data/dns.2015.Y.mtbl",
		},
		{
			name:        "trailing attr params are preserved",
			manifestURI: "https://example.com/data/dns.fileset;type=A",
			fn:          "dns.2015.Y.mtbl",
			want:        "https://example.com/data/dns.2015.Y.mtbl;type=A",
		},
		{
			name:        "no scheme, relative sibling",
			manifestURI: "/srv/data/dns.fileset",
			fn:          "dns.2015.Y.mtbl",
			want:        "/srv/data/dns.2015.Y.mtbl",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RelativeURI(tt.manifestURI, tt.fn))
		})
	}
}
