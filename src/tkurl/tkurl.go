package tkurl

import (
	"net/url"
	"strings"

	"github.com/thetakeaway/takeaway/src/config"
)

// Can be changed by tests or by commands that talk to another server.
var baseUrl = config.Config.BaseUrl

func SetGlobalBaseUrl(u string) {
	baseUrl = strings.TrimSuffix(u, "/")
}

type Q struct {
	Name  string
	Value string
}

func Url(path string, query []Q) string {
	result := baseUrl + "/" + trim(path)
	if q := encodeQuery(query); q != "" {
		result += "?" + q
	}
	return result
}

func trim(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path[1:]
	}
	return path
}

func encodeQuery(query []Q) string {
	result := url.Values{}
	for _, q := range query {
		if q.Value == "" {
			continue
		}
		result.Add(q.Name, q.Value)
	}
	return result.Encode()
}
