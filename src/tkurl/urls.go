package tkurl

import (
	"net/url"
	"regexp"

	"github.com/google/uuid"
)

const uuidPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`

var RegexHealth = regexp.MustCompile("^/api/health$")

func BuildHealth() string {
	return Url("/api/health", nil)
}

var RegexProcessTranscript = regexp.MustCompile("^/api/process-transcript$")

func BuildProcessTranscript() string {
	return Url("/api/process-transcript", nil)
}

var RegexTranscriptProgress = regexp.MustCompile(`^/api/process-transcript/progress/(?P<jobid>[^/]{1,128})$`)

func BuildTranscriptProgress(jobID string) string {
	return Url("/api/process-transcript/progress/"+url.PathEscape(jobID), nil)
}

var RegexTranscriptProgressWebSocket = regexp.MustCompile(`^/api/process-transcript/progress/(?P<jobid>[^/]{1,128})/ws$`)

func BuildTranscriptProgressWebSocket(jobID string) string {
	return Url("/api/process-transcript/progress/"+url.PathEscape(jobID)+"/ws", nil)
}

var RegexDigests = regexp.MustCompile("^/api/digests$")

type DigestsFilter struct {
	Search     string
	CategoryID string
	PodcastID  string
	Sort       string
	Featured   bool
}

func BuildDigests(f DigestsFilter) string {
	var featured string
	if f.Featured {
		featured = "true"
	}
	return Url("/api/digests", []Q{
		{"q", f.Search},
		{"category", f.CategoryID},
		{"podcast", f.PodcastID},
		{"sort", f.Sort},
		{"featured", featured},
	})
}

var RegexDigestFilters = regexp.MustCompile("^/api/digests/filters$")

func BuildDigestFilters() string {
	return Url("/api/digests/filters", nil)
}

var RegexDigest = regexp.MustCompile(`^/api/digests/(?P<id>` + uuidPattern + `)$`)

func BuildDigest(id uuid.UUID) string {
	return Url("/api/digests/"+id.String(), nil)
}

var RegexDigestExport = regexp.MustCompile(`^/api/digests/(?P<id>` + uuidPattern + `)/export$`)

func BuildDigestExport(id uuid.UUID) string {
	return Url("/api/digests/"+id.String()+"/export", nil)
}

var RegexDigestImage = regexp.MustCompile(`^/api/digests/(?P<id>` + uuidPattern + `)/image$`)

func BuildDigestImage(id uuid.UUID) string {
	return Url("/api/digests/"+id.String()+"/image", nil)
}

var RegexIdeas = regexp.MustCompile("^/api/ideas$")

func BuildIdeas() string {
	return Url("/api/ideas", nil)
}

var RegexCategories = regexp.MustCompile("^/api/categories$")

func BuildCategories() string {
	return Url("/api/categories", nil)
}

var RegexCategory = regexp.MustCompile(`^/api/categories/(?P<slug>[a-z0-9]+(?:-[a-z0-9]+)*)$`)

func BuildCategory(slug string) string {
	return Url("/api/categories/"+slug, nil)
}

var RegexPodcasts = regexp.MustCompile("^/api/podcasts$")

func BuildPodcasts() string {
	return Url("/api/podcasts", nil)
}

var RegexCatchAll = regexp.MustCompile("^")
