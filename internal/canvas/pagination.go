package canvas

import (
	"net/http"
	"net/url"
	"strings"
)

// PageToken is the value of the "page" query parameter Canvas puts in its
// Link header. It may be a number or an opaque bookmark.
type PageToken string

// PageLinks holds the tokens parsed from a Link header.
type PageLinks struct {
	Current PageToken
	Next    PageToken
	Prev    PageToken
	First   PageToken
	Last    PageToken

	nextURL string
}

// HasNext reports whether another page follows.
func (p PageLinks) HasNext() bool { return p.Next != "" }

// parseLinks reads a header like
//
//	<https://x/api/v1/courses?page=2&per_page=10>; rel="next", <...>; rel="current"
func parseLinks(h http.Header) PageLinks {
	var links PageLinks
	for _, v := range h.Values("Link") {
		for _, part := range strings.Split(v, ",") {
			segs := strings.Split(part, ";")
			if len(segs) < 2 {
				continue
			}
			raw := strings.Trim(strings.TrimSpace(segs[0]), "<>")
			var rel string
			for _, s := range segs[1:] {
				s = strings.TrimSpace(s)
				if strings.HasPrefix(s, "rel=") {
					rel = strings.Trim(strings.TrimPrefix(s, "rel="), `"`)
				}
			}
			tok := pageToken(raw)
			switch rel {
			case "current":
				links.Current = tok
			case "next":
				links.Next = tok
				links.nextURL = raw
			case "prev":
				links.Prev = tok
			case "first":
				links.First = tok
			case "last":
				links.Last = tok
			}
		}
	}
	return links
}

func pageToken(raw string) PageToken {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return PageToken(u.Query().Get("page"))
}
