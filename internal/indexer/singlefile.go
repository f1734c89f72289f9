package indexer

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SingleFileInfo is the header the SingleFile extension writes into
// saved pages.
type SingleFileInfo struct {
	URL       string
	SavedDate string
	Saved     time.Time
	Info      map[string]string
	Fields    map[string]string
}

const singleFileMarker = " SingleFile"

var (
	singleFileKey = regexp.MustCompile(`\n\s+([_A-Za-z0-9\- ]+): *`)
	nonWord       = regexp.MustCompile(`[^a-zA-Z0-9_]`)
)

// ParseSingleFileComment parses the body of an HTML comment. It returns
// nil when the comment is not a SingleFile header.
//
//	<!--
//	 Page saved with SingleFile
//	 url: https://example.com/
//	 saved date: Sun May 12 2024 23:16:00 GMT+0800 (Taipei Standard Time)
//	 info: ...
//	-->
func ParseSingleFileComment(comment string) *SingleFileInfo {
	i := strings.Index(comment, singleFileMarker)
	if i < 0 {
		return nil
	}
	body := comment[i+len(singleFileMarker):]

	info := &SingleFileInfo{Fields: map[string]string{}}
	locs := singleFileKey.FindAllStringSubmatchIndex(body, -1)
	for _, m := range locs {
		key := strings.ReplaceAll(body[m[2]:m[3]], " ", "_")
		start := m[1]
		var value string
		if key == "info" {
			value = body[start:]
		} else {
			end := strings.IndexByte(body[start:], '\n')
			if end < 0 {
				end = len(body) - start
			}
			value = body[start : start+end]
		}
		info.Fields[key] = strings.TrimRight(value, " \t\r\n")
		if key == "info" {
			break
		}
	}

	info.URL = info.Fields["url"]
	info.SavedDate = info.Fields["saved_date"]
	if t, ok := ParseJSDate(info.SavedDate); ok {
		info.Saved = t
	}
	if raw, ok := info.Fields["info"]; ok {
		info.Info = parseInfoText(raw)
	}
	return info
}

func (s *SingleFileInfo) asMap() map[string]any {
	m := make(map[string]any, len(s.Fields)+1)
	for k, v := range s.Fields {
		m[k] = v
	}
	if !s.Saved.IsZero() {
		m["saved_date"] = s.Saved.Format(time.RFC3339)
	}
	if s.Info != nil {
		m["info"] = s.Info
	}
	return m
}

// ParseJSDate parses the output of JavaScript's Date.toString(), such as
// "Sun May 12 2024 23:16:00 GMT+0800 (Taipei Standard Time)".
func ParseJSDate(s string) (time.Time, bool) {
	s, _, _ = strings.Cut(strings.TrimSpace(s), " (")
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("Mon Jan 2 2006 15:04:05 GMT-0700", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseInfoText reads "key=value" or "key: value" lines. Lines without a
// separator are keyed by their 1-based position.
func parseInfoText(raw string) map[string]string {
	out := map[string]string{}
	for i, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sep := strings.IndexByte(line, '=')
		if sep < 0 {
			sep = strings.IndexByte(line, ':')
		}
		if sep < 0 {
			out[strconv.Itoa(i+1)] = line
			continue
		}
		key := nonWord.ReplaceAllString(strings.TrimSpace(line[:sep]), "_")
		out[key] = strings.TrimSpace(line[sep+1:])
	}
	return out
}
