package fileset

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strings"
)

// ParseManifestLine parses one line of a remote manifest per SPEC_FULL.md
// §4.2: trim trailing whitespace; reject anything that is not a bare
// basename, does not start with "{prefix}.", or does not end with
// ".{extension}". Rejections return an error; callers log and skip, they
// never treat a bad line as fatal to the whole fetch.
func ParseManifestLine(line, prefix, extension string) (Descriptor, error) {
	name := strings.TrimRight(line, " \t\r\n")

	if name == "" {
		return Descriptor{}, fmt.Errorf("fileset: empty manifest line")
	}
	if path.Base(name) != name {
		return Descriptor{}, fmt.Errorf("fileset: manifest entry %q is not a bare basename", name)
	}
	if !strings.HasPrefix(name, prefix+".") {
		return Descriptor{}, fmt.Errorf("fileset: manifest entry %q does not start with %q", name, prefix+".")
	}
	if !strings.HasSuffix(name, "."+extension) {
		return Descriptor{}, fmt.Errorf("fileset: manifest entry %q does not end with %q", name, "."+extension)
	}

	return ParseName(name)
}

// ParseManifest reads a full remote manifest body, parsing each line and
// discarding rejects. It returns the set of valid descriptors and the
// count of lines that failed to parse (for logging).
func ParseManifest(r io.Reader, prefix, extension string) (Set, int, error) {
	out := NewSet()
	rejected := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		d, err := ParseManifestLine(line, prefix, extension)
		if err != nil {
			rejected++
			continue
		}
		out.Add(d)
	}
	if err := scanner.Err(); err != nil {
		return nil, rejected, err
	}
	return out, rejected, nil
}

// RelativeURI resolves a bare filename against the manifest's own URI, per
// SPEC_FULL.md §4.2: scheme, authority, and any trailing ";attr=value"
// parameters are preserved; an absolute path (fn starting with "/")
// replaces the whole path, otherwise fn is joined against the parent
// segment of the manifest's path. Any query string on the base URI is
// discarded, since the manifest URI is assumed query-less; this is a
// deliberate subset of RFC 3986 resolution, sufficient for fileset
// publication and nothing more.
func RelativeURI(manifestURI, fn string) string {
	base := manifestURI
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}

	pathPart, attrs := splitAttrs(base)

	var newPath string
	if strings.HasPrefix(fn, "/") {
		scheme, rest, ok := strings.Cut(pathPart, "://")
		if !ok {
			newPath = fn
		} else {
			authority, _, _ := strings.Cut(rest, "/")
			newPath = fmt.Sprintf("%s://%s%s", scheme, authority, fn)
		}
	} else {
		parent := pathPart
		if i := strings.LastIndexByte(pathPart, '/'); i >= 0 {
			parent = pathPart[:i]
		}
		newPath = parent + "/" + fn
	}

	if attrs != "" {
		newPath = newPath + ";" + attrs
	}
	return newPath
}

// splitAttrs separates a URI's path component from any trailing
// ";attr=value;attr2=value2" parameters, which live after the path but
// before any query string (already stripped by the caller).
func splitAttrs(uri string) (pathPart, attrs string) {
	schemeSep := strings.Index(uri, "://")
	if schemeSep < 0 {
		schemeSep = 0
	} else {
		schemeSep += 3
	}
	if i := strings.IndexByte(uri[schemeSep:], ';'); i >= 0 {
		idx := schemeSep + i
		return uri[:idx], uri[idx+1:]
	}
	return uri, ""
}
